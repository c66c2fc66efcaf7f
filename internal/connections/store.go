// Package connections persists per-user connection records: which
// integrations a user connected, with encrypted credentials and metadata.
package connections

import (
	"context"
	"errors"
	"time"

	"hublink/internal/vault"
)

// ErrNotFound is returned when no connection exists for (user, integration).
var ErrNotFound = errors.New("connection not found")

// Status of a connection. There is no persisted intermediate state; connect
// is atomic from the caller's perspective.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
)

// Metadata captured at connect time.
type Metadata struct {
	BaseURL      string   `json:"baseUrl,omitempty"`
	WorkspaceID  string   `json:"workspaceId,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	ProbeWarning string   `json:"probeWarning,omitempty"`
}

// Connection is the durable record for one (user, integration) pair.
// At most one exists per pair; a reconnect replaces it.
type Connection struct {
	IntegrationID string                    `json:"integrationId"`
	Credential    vault.EncryptedCredential `json:"credential"`
	Status        string                    `json:"status"`
	CreatedAt     time.Time                 `json:"createdAt"`
	UpdatedAt     time.Time                 `json:"updatedAt"`
	Metadata      Metadata                  `json:"metadata"`
}

// Store partitions connections per user; a single List reads the whole
// partition. Save is replace-on-write (last writer wins); implementations
// serialize writes within a partition so concurrent saves cannot interleave
// partially.
type Store interface {
	Save(ctx context.Context, userID string, conn Connection) error
	Get(ctx context.Context, userID, integrationID string) (Connection, error)
	List(ctx context.Context, userID string) ([]Connection, error)
	Delete(ctx context.Context, userID, integrationID string) error
}
