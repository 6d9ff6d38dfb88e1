package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
	"github.com/arturoeanton/go-profile-hub/internal/port"
)

func planFor(version string, items map[string][]domain.PlannedDeployment) *domain.DeploymentPlan {
	return &domain.DeploymentPlan{
		Version:    domain.GuideVersion{CommitSHA: version, FetchedAt: time.Now()},
		ByInstance: items,
	}
}

func planned(templateID, definitionID, version string) domain.PlannedDeployment {
	return domain.PlannedDeployment{
		TemplateID:   templateID,
		DefinitionID: definitionID,
		Kind:         domain.DefinitionKindFormat,
		Version:      version,
		Payload:      json.RawMessage(`{"name":"` + definitionID + `"}`),
	}
}

func twoInstances() *mockInstances {
	return &mockInstances{m: map[string]*domain.Instance{
		"inst-a": {ID: "inst-a", Kind: domain.InstanceKindRadarr, BaseURL: "http://a", EncryptedAPIKey: "enc:key-a"},
		"inst-b": {ID: "inst-b", Kind: domain.InstanceKindSonarr, BaseURL: "http://b", EncryptedAPIKey: "enc:key-b"},
	}}
}

func TestApplySuccessAdvancesVersion(t *testing.T) {
	tracked := &mockTracked{templates: []domain.TrackedTemplate{
		trackedTemplate("inst-a", "tpl-1", "x265", "v1", domain.SyncSettings{Enabled: true}),
	}}
	factory := &mockClientFactory{}
	d := NewDeployer(twoInstances(), tracked, mockResolver{}, factory, testLogger(), 2)

	outcomes := d.Apply(context.Background(), planFor("v2", map[string][]domain.PlannedDeployment{
		"inst-a": {planned("tpl-1", "x265", "v2")},
	}))

	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	if outcomes[0].Status != domain.OutcomeSuccess {
		t.Errorf("expected success, got %s (%s)", outcomes[0].Status, outcomes[0].Error)
	}
	if outcomes[0].ItemsSynced != 1 {
		t.Errorf("expected 1 item synced, got %d", outcomes[0].ItemsSynced)
	}
	if got := tracked.syncedVersion("inst-a", "tpl-1"); got != "v2" {
		t.Errorf("expected last synced version v2, got %q", got)
	}
}

func TestApplyDecryptFailureIsolatedToInstance(t *testing.T) {
	instances := twoInstances()
	instances.m["inst-a"].EncryptedAPIKey = "bad-ciphertext"
	tracked := &mockTracked{templates: []domain.TrackedTemplate{
		trackedTemplate("inst-a", "tpl-1", "x265", "v1", domain.SyncSettings{Enabled: true}),
		trackedTemplate("inst-a", "tpl-2", "hd", "v1", domain.SyncSettings{Enabled: true}),
		trackedTemplate("inst-b", "tpl-3", "x265", "v1", domain.SyncSettings{Enabled: true}),
	}}
	factory := &mockClientFactory{}
	d := NewDeployer(instances, tracked, mockResolver{}, factory, testLogger(), 2)

	outcomes := d.Apply(context.Background(), planFor("v2", map[string][]domain.PlannedDeployment{
		"inst-a": {planned("tpl-1", "x265", "v2"), planned("tpl-2", "hd", "v2")},
		"inst-b": {planned("tpl-3", "x265", "v2")},
	}))

	byTemplate := make(map[string]domain.DeploymentOutcome)
	for _, o := range outcomes {
		byTemplate[o.TemplateID] = o
	}

	for _, id := range []string{"tpl-1", "tpl-2"} {
		o := byTemplate[id]
		if o.Status != domain.OutcomeFailed {
			t.Errorf("expected %s failed, got %s", id, o.Status)
		}
		if !strings.Contains(o.Error, "decrypt credential") {
			t.Errorf("expected decryption error captured for %s, got %q", id, o.Error)
		}
	}
	if byTemplate["tpl-3"].Status != domain.OutcomeSuccess {
		t.Errorf("expected instance B deployed normally, got %s", byTemplate["tpl-3"].Status)
	}

	// Failed templates never advance.
	if got := tracked.syncedVersion("inst-a", "tpl-1"); got != "v1" {
		t.Errorf("failed deployment must not advance version, got %q", got)
	}
	if got := tracked.syncedVersion("inst-b", "tpl-3"); got != "v2" {
		t.Errorf("expected instance B advanced to v2, got %q", got)
	}
}

func TestApplyTemplateFailureDoesNotStopSiblings(t *testing.T) {
	instances := twoInstances()
	tracked := &mockTracked{templates: []domain.TrackedTemplate{
		trackedTemplate("inst-a", "tpl-1", "x265", "v1", domain.SyncSettings{Enabled: true}),
		trackedTemplate("inst-a", "tpl-2", "hd", "v1", domain.SyncSettings{Enabled: true}),
	}}
	// First call per instance fails, subsequent succeed.
	factory := &failOnceFactory{inner: &mockClientFactory{}}
	d := NewDeployer(instances, tracked, mockResolver{}, factory, testLogger(), 1)

	outcomes := d.Apply(context.Background(), planFor("v2", map[string][]domain.PlannedDeployment{
		"inst-a": {planned("tpl-1", "x265", "v2"), planned("tpl-2", "hd", "v2")},
	}))

	byTemplate := make(map[string]domain.DeploymentOutcome)
	for _, o := range outcomes {
		byTemplate[o.TemplateID] = o
	}

	if byTemplate["tpl-1"].Status != domain.OutcomeFailed {
		t.Errorf("expected first template failed, got %s", byTemplate["tpl-1"].Status)
	}
	if byTemplate["tpl-2"].Status != domain.OutcomeSuccess {
		t.Errorf("expected second template to proceed after sibling failure, got %s", byTemplate["tpl-2"].Status)
	}
	if got := tracked.syncedVersion("inst-a", "tpl-1"); got != "v1" {
		t.Errorf("failed template advanced to %q", got)
	}
	if got := tracked.syncedVersion("inst-a", "tpl-2"); got != "v2" {
		t.Errorf("expected surviving template advanced, got %q", got)
	}
}

func TestApplyTimeoutTreatedAsFailure(t *testing.T) {
	instances := twoInstances()
	tracked := &mockTracked{templates: []domain.TrackedTemplate{
		trackedTemplate("inst-a", "tpl-1", "x265", "v1", domain.SyncSettings{Enabled: true}),
	}}
	factory := &mockClientFactory{failInstances: map[string]error{
		"http://a": context.DeadlineExceeded,
	}}
	d := NewDeployer(instances, tracked, mockResolver{}, factory, testLogger(), 2)

	outcomes := d.Apply(context.Background(), planFor("v2", map[string][]domain.PlannedDeployment{
		"inst-a": {planned("tpl-1", "x265", "v2")},
	}))

	if outcomes[0].Status != domain.OutcomeFailed {
		t.Errorf("expected timeout marked failed, got %s", outcomes[0].Status)
	}
	if !strings.Contains(outcomes[0].Error, "deadline exceeded") {
		t.Errorf("expected timeout error captured, got %q", outcomes[0].Error)
	}
	if got := tracked.syncedVersion("inst-a", "tpl-1"); got != "v1" {
		t.Errorf("timeout must not advance version, got %q", got)
	}
}

func TestApplyBookkeepingFailureReportedAsFailed(t *testing.T) {
	instances := twoInstances()
	tracked := &mockTracked{
		templates: []domain.TrackedTemplate{
			trackedTemplate("inst-a", "tpl-1", "x265", "v1", domain.SyncSettings{Enabled: true}),
		},
		advanceErr: errors.New("db down"),
	}
	factory := &mockClientFactory{}
	d := NewDeployer(instances, tracked, mockResolver{}, factory, testLogger(), 2)

	outcomes := d.Apply(context.Background(), planFor("v2", map[string][]domain.PlannedDeployment{
		"inst-a": {planned("tpl-1", "x265", "v2")},
	}))

	if outcomes[0].Status != domain.OutcomeFailed {
		t.Errorf("expected failed when version write fails, got %s", outcomes[0].Status)
	}
}

func TestApplyCarriesPreSkippedAndTouchesThem(t *testing.T) {
	tracked := &mockTracked{}
	factory := &mockClientFactory{}
	d := NewDeployer(twoInstances(), tracked, mockResolver{}, factory, testLogger(), 2)

	plan := planFor("v2", map[string][]domain.PlannedDeployment{})
	plan.PreSkipped = []domain.DeploymentOutcome{{
		InstanceID: "inst-a", TemplateID: "tpl-1", Status: domain.OutcomeSkipped, Error: "definition gone",
	}}

	outcomes := d.Apply(context.Background(), plan)

	if len(outcomes) != 1 || outcomes[0].Status != domain.OutcomeSkipped {
		t.Fatalf("expected skipped outcome carried through, got %+v", outcomes)
	}
	if len(tracked.touched) != 1 || tracked.touched[0] != "inst-a/tpl-1" {
		t.Errorf("expected skip recorded as evaluation, got %v", tracked.touched)
	}
	if len(factory.calls()) != 0 {
		t.Errorf("expected no client calls for skip-only plan")
	}
}

// failOnceFactory fails the first ApplyConfiguration call, then delegates.
type failOnceFactory struct {
	inner  *mockClientFactory
	failed bool
}

func (f *failOnceFactory) ForInstance(baseURL, apiKey string) port.InstanceClient {
	return &failOnceClient{factory: f, inner: f.inner.ForInstance(baseURL, apiKey)}
}

type failOnceClient struct {
	factory *failOnceFactory
	inner   port.InstanceClient
}

func (c *failOnceClient) ApplyConfiguration(ctx context.Context, kind string, payload json.RawMessage) (int, error) {
	if !c.factory.failed {
		c.factory.failed = true
		return 0, errors.New("connection refused")
	}
	return c.inner.ApplyConfiguration(ctx, kind, payload)
}
