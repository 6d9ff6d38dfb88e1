package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
	"github.com/arturoeanton/go-profile-hub/internal/port"
)

// PostgresStore handles all relational database operations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates the tables this service needs if they do not exist.
// Definition payloads are stored as TEXT, not jsonb: the cache contract is
// byte-for-byte stability and jsonb normalizes whitespace and key order.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS instances (
			id UUID PRIMARY KEY,
			label TEXT NOT NULL,
			kind TEXT NOT NULL,
			base_url TEXT NOT NULL,
			encrypted_api_key TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS tracked_templates (
			id UUID PRIMARY KEY,
			instance_id UUID NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
			template_id TEXT NOT NULL,
			definition_id TEXT NOT NULL,
			last_synced_version TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			interval_type TEXT NOT NULL DEFAULT 'DISABLED',
			interval_value INT NOT NULL DEFAULT 1,
			last_run_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (instance_id, template_id)
		)`,
		`CREATE TABLE IF NOT EXISTS cached_versions (
			version TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS cached_definitions (
			version TEXT NOT NULL,
			definition_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (version, definition_id)
		)`,
		`CREATE TABLE IF NOT EXISTS guide_version (
			id INT PRIMARY KEY,
			commit_sha TEXT NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS deployment_outcomes (
			id UUID PRIMARY KEY,
			instance_id TEXT NOT NULL,
			template_id TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL,
			items_synced INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			resource TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			details TEXT NOT NULL,
			ip TEXT NOT NULL,
			user_agent TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- Instances ---

// CreateInstance inserts a new instance record.
func (s *PostgresStore) CreateInstance(ctx context.Context, i *domain.Instance) (*domain.Instance, error) {
	query := `INSERT INTO instances (id, label, kind, base_url, encrypted_api_key)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, label, kind, base_url, encrypted_api_key, created_at, updated_at`

	var inst domain.Instance
	err := s.db.QueryRowContext(ctx, query,
		uuid.NewString(), i.Label, i.Kind, i.BaseURL, i.EncryptedAPIKey,
	).Scan(
		&inst.ID, &inst.Label, &inst.Kind, &inst.BaseURL, &inst.EncryptedAPIKey,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	return &inst, nil
}

// GetInstance returns one instance by ID.
func (s *PostgresStore) GetInstance(ctx context.Context, id string) (*domain.Instance, error) {
	query := `SELECT id, label, kind, base_url, encrypted_api_key, created_at, updated_at
	          FROM instances WHERE id = $1`

	var inst domain.Instance
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&inst.ID, &inst.Label, &inst.Kind, &inst.BaseURL, &inst.EncryptedAPIKey,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return &inst, nil
}

// ListInstances returns all registered instances.
func (s *PostgresStore) ListInstances(ctx context.Context) ([]domain.Instance, error) {
	query := `SELECT id, label, kind, base_url, encrypted_api_key, created_at, updated_at
	          FROM instances ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var instances []domain.Instance
	for rows.Next() {
		var inst domain.Instance
		if err := rows.Scan(
			&inst.ID, &inst.Label, &inst.Kind, &inst.BaseURL, &inst.EncryptedAPIKey,
			&inst.CreatedAt, &inst.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// DeleteInstance removes an instance and, via cascade, its tracked templates.
func (s *PostgresStore) DeleteInstance(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return port.ErrInstanceNotFound
	}
	return nil
}

// --- Tracked templates ---

const trackedColumns = `id, instance_id, template_id, definition_id, last_synced_version,
	enabled, interval_type, interval_value, last_run_at, created_at, updated_at`

func scanTracked(row interface{ Scan(...any) error }) (domain.TrackedTemplate, error) {
	var t domain.TrackedTemplate
	var lastRun sql.NullTime
	err := row.Scan(
		&t.ID, &t.InstanceID, &t.TemplateID, &t.DefinitionID, &t.LastSyncedVersion,
		&t.Settings.Enabled, &t.Settings.IntervalType, &t.Settings.IntervalValue,
		&lastRun, &t.CreatedAt, &t.UpdatedAt,
	)
	if lastRun.Valid {
		t.LastRunAt = lastRun.Time
	}
	return t, err
}

// CreateTrackedTemplate opts an (instance, template) pair into auto-sync.
func (s *PostgresStore) CreateTrackedTemplate(ctx context.Context, t *domain.TrackedTemplate) (*domain.TrackedTemplate, error) {
	query := `INSERT INTO tracked_templates
	          (id, instance_id, template_id, definition_id, enabled, interval_type, interval_value)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING ` + trackedColumns

	row := s.db.QueryRowContext(ctx, query,
		uuid.NewString(), t.InstanceID, t.TemplateID, t.DefinitionID,
		t.Settings.Enabled, t.Settings.IntervalType, t.Settings.IntervalValue,
	)
	tracked, err := scanTracked(row)
	if err != nil {
		return nil, fmt.Errorf("create tracked template: %w", err)
	}
	return &tracked, nil
}

// UpdateSyncSettings replaces a tracked template's sync settings.
func (s *PostgresStore) UpdateSyncSettings(ctx context.Context, id string, settings domain.SyncSettings) (*domain.TrackedTemplate, error) {
	query := `UPDATE tracked_templates
	          SET enabled = $2, interval_type = $3, interval_value = $4, updated_at = NOW()
	          WHERE id = $1
	          RETURNING ` + trackedColumns

	row := s.db.QueryRowContext(ctx, query, id, settings.Enabled, settings.IntervalType, settings.IntervalValue)
	tracked, err := scanTracked(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update sync settings: %w", err)
	}
	return &tracked, nil
}

// DeleteTrackedTemplate removes tracking for one pair.
func (s *PostgresStore) DeleteTrackedTemplate(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tracked_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tracked template: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return port.ErrTemplateNotFound
	}
	return nil
}

// ListTracked returns every tracked template.
func (s *PostgresStore) ListTracked(ctx context.Context) ([]domain.TrackedTemplate, error) {
	return s.listTracked(ctx, `SELECT `+trackedColumns+` FROM tracked_templates ORDER BY created_at`)
}

// ListEnabled returns tracked templates with sync enabled.
func (s *PostgresStore) ListEnabled(ctx context.Context) ([]domain.TrackedTemplate, error) {
	return s.listTracked(ctx, `SELECT `+trackedColumns+` FROM tracked_templates WHERE enabled = TRUE ORDER BY instance_id, created_at`)
}

func (s *PostgresStore) listTracked(ctx context.Context, query string) ([]domain.TrackedTemplate, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tracked templates: %w", err)
	}
	defer rows.Close()

	var tracked []domain.TrackedTemplate
	for rows.Next() {
		t, err := scanTracked(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked template: %w", err)
		}
		tracked = append(tracked, t)
	}
	return tracked, rows.Err()
}

// AdvanceSyncedVersion records a successful deployment for one pair.
func (s *PostgresStore) AdvanceSyncedVersion(ctx context.Context, instanceID, templateID, version string) error {
	query := `UPDATE tracked_templates
	          SET last_synced_version = $3, last_run_at = NOW(), updated_at = NOW()
	          WHERE instance_id = $1 AND template_id = $2`

	result, err := s.db.ExecContext(ctx, query, instanceID, templateID, version)
	if err != nil {
		return fmt.Errorf("advance synced version: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return port.ErrTemplateNotFound
	}
	return nil
}

// TouchRun updates last_run_at for one pair without advancing the version.
func (s *PostgresStore) TouchRun(ctx context.Context, instanceID, templateID string) error {
	query := `UPDATE tracked_templates SET last_run_at = NOW(), updated_at = NOW()
	          WHERE instance_id = $1 AND template_id = $2`

	if _, err := s.db.ExecContext(ctx, query, instanceID, templateID); err != nil {
		return fmt.Errorf("touch tracked template: %w", err)
	}
	return nil
}

// --- Guide version baseline ---

// LastVersion returns the recorded guide version baseline.
func (s *PostgresStore) LastVersion(ctx context.Context) (domain.GuideVersion, error) {
	var v domain.GuideVersion
	err := s.db.QueryRowContext(ctx, `SELECT commit_sha, fetched_at FROM guide_version WHERE id = 1`).
		Scan(&v.CommitSHA, &v.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GuideVersion{}, nil
	}
	if err != nil {
		return domain.GuideVersion{}, fmt.Errorf("get guide version: %w", err)
	}
	return v, nil
}

// RecordVersion upserts the guide version baseline.
func (s *PostgresStore) RecordVersion(ctx context.Context, v domain.GuideVersion) error {
	query := `INSERT INTO guide_version (id, commit_sha, fetched_at) VALUES (1, $1, $2)
	          ON CONFLICT (id) DO UPDATE SET commit_sha = EXCLUDED.commit_sha, fetched_at = EXCLUDED.fetched_at`

	if _, err := s.db.ExecContext(ctx, query, v.CommitSHA, v.FetchedAt); err != nil {
		return fmt.Errorf("record guide version: %w", err)
	}
	return nil
}

// --- Definition cache ---

// Get returns the definitions cached for a version, or port.ErrCacheMiss.
// Version presence is tracked separately from the definition rows, so a
// version whose definition set is legitimately empty is still a cache hit.
func (s *PostgresStore) Get(ctx context.Context, version string) ([]domain.CachedDefinition, error) {
	query := `SELECT definition_id, kind, payload, version FROM cached_definitions
	          WHERE version = $1 ORDER BY definition_id`

	rows, err := s.db.QueryContext(ctx, query, version)
	if err != nil {
		return nil, fmt.Errorf("get cached definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.CachedDefinition
	for rows.Next() {
		var d domain.CachedDefinition
		var payload string
		if err := rows.Scan(&d.DefinitionID, &d.Kind, &payload, &d.Version); err != nil {
			return nil, fmt.Errorf("scan cached definition: %w", err)
		}
		d.Payload = []byte(payload)
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(defs) == 0 {
		var exists bool
		query := `SELECT EXISTS (SELECT 1 FROM cached_versions WHERE version = $1)`
		if err := s.db.QueryRowContext(ctx, query, version).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check cached version: %w", err)
		}
		if !exists {
			return nil, port.ErrCacheMiss
		}
	}
	return defs, nil
}

// Put stores definitions for a version. Identical content is a no-op;
// differing content for an existing version is a consistency violation.
func (s *PostgresStore) Put(ctx context.Context, version string, defs []domain.CachedDefinition) error {
	existing, err := s.Get(ctx, version)
	switch {
	case errors.Is(err, port.ErrCacheMiss):
		// first store for this version
	case err != nil:
		return err
	default:
		if !sameDefinitions(existing, defs) {
			return &port.CacheConsistencyError{Version: version}
		}
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache put: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `INSERT INTO cached_versions (version) VALUES ($1)`, version); err != nil {
		return fmt.Errorf("put cached version: %w", err)
	}

	query := `INSERT INTO cached_definitions (version, definition_id, kind, payload) VALUES ($1, $2, $3, $4)`
	for _, d := range defs {
		if _, err := tx.ExecContext(ctx, query, version, d.DefinitionID, d.Kind, string(d.Payload)); err != nil {
			return fmt.Errorf("put cached definition %s: %w", d.DefinitionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache put: %w", err)
	}
	return nil
}

// sameDefinitions reports whether two definition sets hold identical content,
// regardless of order. Duplicate IDs in b make the sets unequal: with the
// length check alone, a duplicated entry could mask a missing one.
func sameDefinitions(a, b []domain.CachedDefinition) bool {
	if len(a) != len(b) {
		return false
	}
	byID := make(map[string]domain.CachedDefinition, len(a))
	for _, d := range a {
		byID[d.DefinitionID] = d
	}
	seen := make(map[string]bool, len(b))
	for _, d := range b {
		if seen[d.DefinitionID] {
			return false
		}
		seen[d.DefinitionID] = true
		other, ok := byID[d.DefinitionID]
		if !ok || other.Kind != d.Kind || !bytes.Equal(other.Payload, d.Payload) {
			return false
		}
	}
	return true
}

// --- Deployment outcomes ---

// SaveOutcomes replaces the stored outcomes with the latest run's.
func (s *PostgresStore) SaveOutcomes(ctx context.Context, outcomes []domain.DeploymentOutcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save outcomes: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM deployment_outcomes`); err != nil {
		return fmt.Errorf("clear outcomes: %w", err)
	}

	query := `INSERT INTO deployment_outcomes (id, instance_id, template_id, status, error, timestamp, items_synced)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, o := range outcomes {
		if _, err := tx.ExecContext(ctx, query,
			uuid.NewString(), o.InstanceID, o.TemplateID, o.Status, o.Error, o.Timestamp, o.ItemsSynced,
		); err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save outcomes: %w", err)
	}
	return nil
}

// LastOutcomes returns the most recent run's outcomes.
func (s *PostgresStore) LastOutcomes(ctx context.Context) ([]domain.DeploymentOutcome, error) {
	query := `SELECT instance_id, template_id, status, error, timestamp, items_synced
	          FROM deployment_outcomes ORDER BY instance_id, template_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []domain.DeploymentOutcome
	for rows.Next() {
		var o domain.DeploymentOutcome
		if err := rows.Scan(&o.InstanceID, &o.TemplateID, &o.Status, &o.Error, &o.Timestamp, &o.ItemsSynced); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// --- Audit ---

// WriteAudit persists one audit record. Implements middleware.AuditWriter.
func (s *PostgresStore) WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error {
	query := `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, details, ip, user_agent)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := s.db.Exec(query, uuid.NewString(), userID, action, resource, resourceID, details, ip, userAgent); err != nil {
		return fmt.Errorf("write audit: %w", err)
	}
	return nil
}

// ListAuditLogs returns recent audit records, newest first, optionally
// filtered by action.
func (s *PostgresStore) ListAuditLogs(ctx context.Context, limit int, action string) ([]domain.AuditLog, error) {
	query := `SELECT id, user_id, action, resource, resource_id, details, ip, user_agent, created_at
	          FROM audit_logs`
	args := []interface{}{}
	argIdx := 1

	if action != "" {
		query += fmt.Sprintf(" WHERE action = $%d", argIdx)
		args = append(args, action)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}
