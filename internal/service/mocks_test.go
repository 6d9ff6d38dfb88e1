package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
	"github.com/arturoeanton/go-profile-hub/internal/port"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockSource implements port.GuideSource.
type mockSource struct {
	mu         sync.Mutex
	head       domain.GuideVersion
	headErr    error
	defs       []domain.CachedDefinition
	fetchErr   error
	headCalls  int
	fetchCalls int
}

func (m *mockSource) HeadVersion(_ context.Context, _ domain.RepoConfig) (domain.GuideVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headCalls++
	return m.head, m.headErr
}

func (m *mockSource) FetchDefinitions(_ context.Context, _ domain.RepoConfig) (domain.GuideVersion, []domain.CachedDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchCalls++
	if m.fetchErr != nil {
		return domain.GuideVersion{}, nil, m.fetchErr
	}
	return m.head, m.defs, nil
}

// mockVersions implements port.VersionStore.
type mockVersions struct {
	mu        sync.Mutex
	v         domain.GuideVersion
	recordErr error
}

func (m *mockVersions) LastVersion(_ context.Context) (domain.GuideVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v, nil
}

func (m *mockVersions) RecordVersion(_ context.Context, v domain.GuideVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.v = v
	return nil
}

// mockCache implements port.DefinitionCache.
type mockCache struct {
	mu     sync.Mutex
	m      map[string][]domain.CachedDefinition
	putErr error
}

func newMockCache() *mockCache {
	return &mockCache{m: make(map[string][]domain.CachedDefinition)}
}

func (m *mockCache) Get(_ context.Context, version string) ([]domain.CachedDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defs, ok := m.m[version]
	if !ok {
		return nil, port.ErrCacheMiss
	}
	return defs, nil
}

func (m *mockCache) Put(_ context.Context, version string, defs []domain.CachedDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.m[version] = defs
	return nil
}

// mockTracked implements port.TrackedTemplateStore. AdvanceSyncedVersion
// mutates the stored rows so multi-pass tests observe real state evolution.
type mockTracked struct {
	mu         sync.Mutex
	templates  []domain.TrackedTemplate
	advanced   []string // "instanceID/templateID@version"
	touched    []string // "instanceID/templateID"
	listErr    error
	advanceErr error
}

func (m *mockTracked) ListEnabled(_ context.Context) ([]domain.TrackedTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var enabled []domain.TrackedTemplate
	for _, t := range m.templates {
		if t.Settings.Enabled {
			enabled = append(enabled, t)
		}
	}
	return enabled, nil
}

func (m *mockTracked) AdvanceSyncedVersion(_ context.Context, instanceID, templateID, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.advanceErr != nil {
		return m.advanceErr
	}
	m.advanced = append(m.advanced, fmt.Sprintf("%s/%s@%s", instanceID, templateID, version))
	for i := range m.templates {
		if m.templates[i].InstanceID == instanceID && m.templates[i].TemplateID == templateID {
			m.templates[i].LastSyncedVersion = version
		}
	}
	return nil
}

func (m *mockTracked) TouchRun(_ context.Context, instanceID, templateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, instanceID+"/"+templateID)
	return nil
}

func (m *mockTracked) syncedVersion(instanceID, templateID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.templates {
		if t.InstanceID == instanceID && t.TemplateID == templateID {
			return t.LastSyncedVersion
		}
	}
	return ""
}

// mockInstances implements port.InstanceStore.
type mockInstances struct {
	m map[string]*domain.Instance
}

func (m *mockInstances) GetInstance(_ context.Context, id string) (*domain.Instance, error) {
	inst, ok := m.m[id]
	if !ok {
		return nil, port.ErrInstanceNotFound
	}
	return inst, nil
}

// mockOutcomes implements port.OutcomeStore.
type mockOutcomes struct {
	mu    sync.Mutex
	last  []domain.DeploymentOutcome
	saves int
}

func (m *mockOutcomes) SaveOutcomes(_ context.Context, outcomes []domain.DeploymentOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = outcomes
	m.saves++
	return nil
}

func (m *mockOutcomes) LastOutcomes(_ context.Context) ([]domain.DeploymentOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, nil
}

// mockResolver implements port.CredentialResolver. Ciphertexts beginning with
// "bad" fail to open; everything else round-trips with a prefix stripped.
type mockResolver struct{}

func (mockResolver) Seal(plaintext string) (string, error) { return "enc:" + plaintext, nil }

func (mockResolver) Open(ciphertext string) (string, error) {
	if len(ciphertext) >= 3 && ciphertext[:3] == "bad" {
		return "", fmt.Errorf("authentication failed")
	}
	if len(ciphertext) > 4 && ciphertext[:4] == "enc:" {
		return ciphertext[4:], nil
	}
	return ciphertext, nil
}

// mockClientFactory implements port.ClientFactory; all clients record into
// the factory and fail according to failTemplates.
type mockClientFactory struct {
	mu            sync.Mutex
	applied       []string         // "baseURL kind payload"
	failInstances map[string]error // baseURL -> error for every call
}

func (f *mockClientFactory) ForInstance(baseURL, apiKey string) port.InstanceClient {
	return &mockClient{factory: f, baseURL: baseURL, apiKey: apiKey}
}

func (f *mockClientFactory) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

type mockClient struct {
	factory *mockClientFactory
	baseURL string
	apiKey  string
}

func (c *mockClient) ApplyConfiguration(_ context.Context, kind string, payload json.RawMessage) (int, error) {
	c.factory.mu.Lock()
	defer c.factory.mu.Unlock()
	if err, ok := c.factory.failInstances[c.baseURL]; ok && err != nil {
		return 0, err
	}
	c.factory.applied = append(c.factory.applied, fmt.Sprintf("%s %s %s", c.baseURL, kind, payload))
	return 1, nil
}
