package port

import (
	"context"
	"encoding/json"
)

// InstanceClient exposes the configuration-update call of one external
// instance. Timeouts and retries are the sync engine's responsibility.
type InstanceClient interface {
	// ApplyConfiguration pushes one recomputed definition payload to the
	// instance and returns the number of items the instance accepted.
	ApplyConfiguration(ctx context.Context, kind string, payload json.RawMessage) (int, error)
}

// ClientFactory builds an API client bound to one instance's base URL and
// decrypted credential.
type ClientFactory interface {
	ForInstance(baseURL, apiKey string) InstanceClient
}
