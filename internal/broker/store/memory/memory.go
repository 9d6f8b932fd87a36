// Package memory provides the in-memory store backing the broker's flow
// state. Pending authorizations, issued codes, and sessions are inherently
// short-lived, so process-local maps with TTL checks are the default store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerly/agentgate/internal/broker/domain"
	"github.com/ledgerly/agentgate/internal/broker/store"
)

// Store implements store.Store with mutex-guarded maps.
type Store struct {
	clients      *clientsRepo
	pendingFlows *pendingFlowsRepo
	issuedCodes  *issuedCodesRepo
	sessions     *sessionsRepo

	now func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.clients = &clientsRepo{items: make(map[string]domain.Client)}
	s.pendingFlows = &pendingFlowsRepo{items: make(map[string]domain.PendingAuthorization), now: s.now}
	s.issuedCodes = &issuedCodesRepo{items: make(map[string]domain.IssuedCode), now: s.now}
	s.sessions = &sessionsRepo{
		items:         make(map[string]domain.Session),
		byFingerprint: make(map[string]string),
		now:           s.now,
	}
	return s
}

func (s *Store) Clients() store.Clients           { return s.clients }
func (s *Store) PendingFlows() store.PendingFlows { return s.pendingFlows }
func (s *Store) IssuedCodes() store.IssuedCodes   { return s.issuedCodes }
func (s *Store) Sessions() store.Sessions         { return s.sessions }

func (s *Store) Close() error               { return nil }
func (s *Store) Ping(context.Context) error { return nil }

type clientsRepo struct {
	mu    sync.RWMutex
	items map[string]domain.Client
	order []string
}

func (r *clientsRepo) GetClientByID(_ context.Context, id string) (domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[id]
	if !ok {
		return domain.Client{}, store.ErrNotFound
	}
	return c, nil
}

func (r *clientsRepo) ListClients(context.Context) ([]domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Client, 0, len(r.order))
	// Newest first.
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.items[r.order[i]])
	}
	return out, nil
}

func (r *clientsRepo) CreateClient(_ context.Context, c domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[c.ID]; exists {
		return store.ErrAlreadyExists
	}
	r.items[c.ID] = c
	r.order = append(r.order, c.ID)
	return nil
}

type pendingFlowsRepo struct {
	mu    sync.Mutex
	items map[string]domain.PendingAuthorization
	now   func() time.Time
}

func (r *pendingFlowsRepo) CreatePendingFlow(_ context.Context, keyHash string, p domain.PendingAuthorization) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[keyHash]; exists {
		return store.ErrAlreadyExists
	}
	r.items[keyHash] = p
	return nil
}

func (r *pendingFlowsRepo) TakePendingFlow(_ context.Context, keyHash string) (domain.PendingAuthorization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[keyHash]
	if !ok {
		return domain.PendingAuthorization{}, store.ErrNotFound
	}
	// Delete regardless of expiry so an expired record cannot be retried.
	delete(r.items, keyHash)

	if p.Expired(r.now()) {
		return domain.PendingAuthorization{}, store.ErrNotFound
	}
	return p, nil
}

func (r *pendingFlowsRepo) DeleteExpiredPendingFlows(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for key, p := range r.items {
		if p.Expired(now) {
			delete(r.items, key)
		}
	}
	return nil
}

type issuedCodesRepo struct {
	mu    sync.Mutex
	items map[string]domain.IssuedCode
	now   func() time.Time
}

func (r *issuedCodesRepo) CreateIssuedCode(_ context.Context, code domain.IssuedCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[code.CodeHash]; exists {
		return store.ErrAlreadyExists
	}
	r.items[code.CodeHash] = code
	return nil
}

func (r *issuedCodesRepo) GetIssuedCodeByHash(_ context.Context, hash string) (domain.IssuedCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.items[hash]
	if !ok || code.Expired(r.now()) {
		return domain.IssuedCode{}, store.ErrNotFound
	}
	return code, nil
}

func (r *issuedCodesRepo) TakeIssuedCodeByHash(_ context.Context, hash string) (domain.IssuedCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.items[hash]
	if !ok {
		return domain.IssuedCode{}, store.ErrNotFound
	}
	delete(r.items, hash)

	if code.Expired(r.now()) {
		return domain.IssuedCode{}, store.ErrNotFound
	}
	return code, nil
}

func (r *issuedCodesRepo) DeleteExpiredIssuedCodes(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for hash, code := range r.items {
		if code.Expired(now) {
			delete(r.items, hash)
		}
	}
	return nil
}

// sessionsRepo stores sessions by id with a secondary index from the access
// token fingerprint, so a session is reachable both from its identifier and
// from the bearer token it currently holds.
type sessionsRepo struct {
	mu            sync.RWMutex
	items         map[string]domain.Session
	byFingerprint map[string]string
	now           func() time.Time
}

func (r *sessionsRepo) CreateSession(_ context.Context, s domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[s.ID]; exists {
		return store.ErrAlreadyExists
	}
	r.items[s.ID] = s
	if s.TokenFingerprint != "" {
		r.byFingerprint[s.TokenFingerprint] = s.ID
	}
	return nil
}

func (r *sessionsRepo) GetSessionByID(_ context.Context, id string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[id]
	if !ok || s.Expired(r.now()) {
		return domain.Session{}, store.ErrNotFound
	}
	return s, nil
}

func (r *sessionsRepo) GetSessionByFingerprint(_ context.Context, fingerprint string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byFingerprint[fingerprint]
	if !ok {
		return domain.Session{}, store.ErrNotFound
	}
	s, ok := r.items[id]
	if !ok || s.Expired(r.now()) {
		return domain.Session{}, store.ErrNotFound
	}
	return s, nil
}

func (r *sessionsRepo) UpdateSession(_ context.Context, s domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.items[s.ID]
	if !ok {
		return store.ErrNotFound
	}
	if old.TokenFingerprint != "" && old.TokenFingerprint != s.TokenFingerprint {
		delete(r.byFingerprint, old.TokenFingerprint)
	}
	r.items[s.ID] = s
	if s.TokenFingerprint != "" {
		r.byFingerprint[s.TokenFingerprint] = s.ID
	}
	return nil
}

func (r *sessionsRepo) DeleteSessionByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleteLocked(id)
	return nil
}

func (r *sessionsRepo) DeleteSessionByFingerprint(_ context.Context, fingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byFingerprint[fingerprint]; ok {
		r.deleteLocked(id)
	}
	return nil
}

func (r *sessionsRepo) DeleteExpiredSessions(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, s := range r.items {
		if s.Expired(now) {
			r.deleteLocked(id)
		}
	}
	return nil
}

// deleteLocked removes a session and its fingerprint index entry. Callers
// hold the write lock.
func (r *sessionsRepo) deleteLocked(id string) {
	if s, ok := r.items[id]; ok && s.TokenFingerprint != "" {
		delete(r.byFingerprint, s.TokenFingerprint)
	}
	delete(r.items, id)
}
