package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
	"github.com/arturoeanton/go-profile-hub/internal/port"
)

// Deployer fans a deployment plan out across instances with bounded
// concurrency. Templates within one instance are applied sequentially, in
// plan order.
type Deployer struct {
	instances   port.InstanceStore
	tracked     port.TrackedTemplateStore
	credentials port.CredentialResolver
	clients     port.ClientFactory
	logger      *slog.Logger
	concurrency int
}

// NewDeployer creates a new deployment executor.
func NewDeployer(
	instances port.InstanceStore,
	tracked port.TrackedTemplateStore,
	credentials port.CredentialResolver,
	clients port.ClientFactory,
	logger *slog.Logger,
	concurrency int,
) *Deployer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Deployer{
		instances:   instances,
		tracked:     tracked,
		credentials: credentials,
		clients:     clients,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Apply executes the plan and returns one outcome per (instance, template).
//
// Failures never cross their boundary: a credential that fails to decrypt
// fails every template of that instance and nothing else; a single template
// failure does not stop later templates on the same instance nor other
// instances. Only a success advances the template's last synced version.
func (d *Deployer) Apply(ctx context.Context, plan *domain.DeploymentPlan) []domain.DeploymentOutcome {
	outcomes := make([]domain.DeploymentOutcome, 0, len(plan.PreSkipped)+plan.Deployments())
	outcomes = append(outcomes, plan.PreSkipped...)

	// Skipped templates still count as evaluated for schedule purposes.
	for _, o := range plan.PreSkipped {
		if err := d.tracked.TouchRun(ctx, o.InstanceID, o.TemplateID); err != nil {
			d.logger.Warn("failed to record skip evaluation",
				"instance_id", o.InstanceID, "template_id", o.TemplateID, "error", err)
		}
	}

	instanceIDs := make([]string, 0, len(plan.ByInstance))
	for id := range plan.ByInstance {
		instanceIDs = append(instanceIDs, id)
	}
	sort.Strings(instanceIDs)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.concurrency)
	)

	for _, instanceID := range instanceIDs {
		items := plan.ByInstance[instanceID]
		wg.Add(1)
		sem <- struct{}{}
		go func(instanceID string, items []domain.PlannedDeployment) {
			defer wg.Done()
			defer func() { <-sem }()

			result := d.deployInstance(ctx, instanceID, items)

			mu.Lock()
			outcomes = append(outcomes, result...)
			mu.Unlock()
		}(instanceID, items)
	}
	wg.Wait()

	return outcomes
}

// deployInstance applies all of one instance's planned deployments in order.
func (d *Deployer) deployInstance(ctx context.Context, instanceID string, items []domain.PlannedDeployment) []domain.DeploymentOutcome {
	inst, err := d.instances.GetInstance(ctx, instanceID)
	if err != nil {
		d.logger.Error("instance lookup failed", "instance_id", instanceID, "error", err)
		return failAll(instanceID, items, err.Error())
	}

	apiKey, err := d.credentials.Open(inst.EncryptedAPIKey)
	if err != nil {
		decErr := &port.DecryptionError{InstanceID: instanceID, Err: err}
		d.logger.Error("credential decryption failed", "instance_id", instanceID, "error", decErr)
		return failAll(instanceID, items, decErr.Error())
	}

	client := d.clients.ForInstance(inst.BaseURL, apiKey)

	outcomes := make([]domain.DeploymentOutcome, 0, len(items))
	for _, item := range items {
		outcomes = append(outcomes, d.deployOne(ctx, instanceID, client, item))
	}
	return outcomes
}

func (d *Deployer) deployOne(ctx context.Context, instanceID string, client port.InstanceClient, item domain.PlannedDeployment) domain.DeploymentOutcome {
	outcome := domain.DeploymentOutcome{
		InstanceID: instanceID,
		TemplateID: item.TemplateID,
		Timestamp:  time.Now(),
	}

	synced, err := client.ApplyConfiguration(ctx, item.Kind, item.Payload)
	if err != nil {
		depErr := &port.DeploymentError{InstanceID: instanceID, TemplateID: item.TemplateID, Err: err}
		d.logger.Error("deployment failed",
			"instance_id", instanceID, "template_id", item.TemplateID, "version", item.Version, "error", err)
		outcome.Status = domain.OutcomeFailed
		outcome.Error = depErr.Error()
		return outcome
	}

	if err := d.tracked.AdvanceSyncedVersion(ctx, instanceID, item.TemplateID, item.Version); err != nil {
		// The instance accepted the payload but the bookkeeping write failed;
		// the pair stays behind its deployed version and retries next pass.
		d.logger.Error("failed to advance synced version",
			"instance_id", instanceID, "template_id", item.TemplateID, "version", item.Version, "error", err)
		outcome.Status = domain.OutcomeFailed
		outcome.Error = "record synced version: " + err.Error()
		return outcome
	}

	d.logger.Info("deployment succeeded",
		"instance_id", instanceID, "template_id", item.TemplateID, "version", item.Version, "items_synced", synced)
	outcome.Status = domain.OutcomeSuccess
	outcome.ItemsSynced = synced
	return outcome
}

func failAll(instanceID string, items []domain.PlannedDeployment, reason string) []domain.DeploymentOutcome {
	now := time.Now()
	outcomes := make([]domain.DeploymentOutcome, 0, len(items))
	for _, item := range items {
		outcomes = append(outcomes, domain.DeploymentOutcome{
			InstanceID: instanceID,
			TemplateID: item.TemplateID,
			Status:     domain.OutcomeFailed,
			Error:      reason,
			Timestamp:  now,
		})
	}
	return outcomes
}
