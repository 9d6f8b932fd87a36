package store

import (
	"context"
	"errors"

	"github.com/ledgerly/agentgate/internal/broker/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. The broker ships an in-memory
// implementation for all flow state; the client registry can additionally be
// backed by sqlite so registrations survive restarts. Sub-repositories keep
// the concerns tidy and individually swappable.
type Store interface {
	Clients() Clients
	PendingFlows() PendingFlows
	IssuedCodes() IssuedCodes
	Sessions() Sessions

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backing store is still usable.
	Ping(ctx context.Context) error
}

type Clients interface {
	// GetClientByID fetches a registered client.
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// ListClients returns all registered clients, newest first.
	ListClients(ctx context.Context) ([]domain.Client, error)

	// CreateClient inserts a new client (id is ULID; secret_hash is empty
	// for public clients).
	CreateClient(ctx context.Context, c domain.Client) error
}

type PendingFlows interface {
	// CreatePendingFlow stores a new pending authorization keyed by the
	// fingerprint of its correlation key.
	CreatePendingFlow(ctx context.Context, keyHash string, p domain.PendingAuthorization) error

	// TakePendingFlow returns and removes the pending authorization in one
	// atomic step, so a replayed callback cannot observe the record.
	// Returns ErrNotFound when the key is unknown, already taken, or the
	// record has expired.
	TakePendingFlow(ctx context.Context, keyHash string) (domain.PendingAuthorization, error)

	// DeleteExpiredPendingFlows removes abandoned flows (housekeeping).
	DeleteExpiredPendingFlows(ctx context.Context) error
}

type IssuedCodes interface {
	// CreateIssuedCode stores a freshly minted authorization code keyed by
	// its hash.
	CreateIssuedCode(ctx context.Context, code domain.IssuedCode) error

	// GetIssuedCodeByHash fetches a code without consuming it. Used when a
	// caller needs the stored challenge before committing to redemption.
	GetIssuedCodeByHash(ctx context.Context, hash string) (domain.IssuedCode, error)

	// TakeIssuedCodeByHash returns and removes the code in one atomic step.
	// A second redemption of the same code returns ErrNotFound.
	TakeIssuedCodeByHash(ctx context.Context, hash string) (domain.IssuedCode, error)

	// DeleteExpiredIssuedCodes removes unredeemed codes past their TTL.
	DeleteExpiredIssuedCodes(ctx context.Context) error
}

type Sessions interface {
	// CreateSession stores a serving session keyed by its id, indexed
	// additionally by the access token fingerprint when one is set.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByID returns the session with the given id.
	GetSessionByID(ctx context.Context, id string) (domain.Session, error)

	// GetSessionByFingerprint returns the session holding the token with
	// the given fingerprint.
	GetSessionByFingerprint(ctx context.Context, fingerprint string) (domain.Session, error)

	// UpdateSession replaces the stored session with the same id, moving
	// the fingerprint index when the token set was refreshed in place.
	UpdateSession(ctx context.Context, s domain.Session) error

	// DeleteSessionByID removes a session on teardown.
	DeleteSessionByID(ctx context.Context, id string) error

	// DeleteSessionByFingerprint drops a session by its token, e.g. when
	// upstream rejects the token before the stored expiry.
	DeleteSessionByFingerprint(ctx context.Context, fingerprint string) error

	// DeleteExpiredSessions removes lapsed sessions.
	DeleteExpiredSessions(ctx context.Context) error
}
