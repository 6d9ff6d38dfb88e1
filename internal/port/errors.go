package port

import (
	"errors"
	"fmt"
)

// Sentinel errors used across ports.
var (
	ErrInstanceNotFound = errors.New("instance not found")
	ErrTemplateNotFound = errors.New("tracked template not found")
	ErrCacheMiss        = errors.New("no cached definitions for version")
	ErrRunInProgress    = errors.New("a sync pass is already running")
)

// FetchError indicates the upstream guide repository could not be reached or
// answered with a non-success status. Aborts the current pass; retried on the
// next tick.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("guide fetch %s: %v", e.Op, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// ParseError indicates upstream content was retrieved but is not well-formed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse guide content %s: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// NotConfiguredError indicates the guide repository coordinates are incomplete.
type NotConfiguredError struct {
	Missing string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("guide repository not configured: missing %s", e.Missing)
}

// CacheConsistencyError indicates a version was stored twice with different
// content. This should never happen with content-addressed versions; the pass
// is aborted rather than silently overwriting the cache.
type CacheConsistencyError struct {
	Version string
}

func (e *CacheConsistencyError) Error() string {
	return fmt.Sprintf("cache already holds different content for version %s", e.Version)
}

// DecryptionError indicates an instance credential could not be decrypted.
// Isolated to that instance; other instances proceed.
type DecryptionError struct {
	InstanceID string
	Err        error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decrypt credential for instance %s: %v", e.InstanceID, e.Err)
}
func (e *DecryptionError) Unwrap() error { return e.Err }

// DeploymentError indicates a single (instance, template) deployment failed.
// Isolated to that pair; the rest of the plan proceeds.
type DeploymentError struct {
	InstanceID string
	TemplateID string
	Err        error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deploy template %s to instance %s: %v", e.TemplateID, e.InstanceID, e.Err)
}
func (e *DeploymentError) Unwrap() error { return e.Err }

// ConfigError indicates invalid repository or scheduler configuration. The
// sync feature is disabled gracefully instead of crashing the process.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config %s: %v", e.Field, e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }
