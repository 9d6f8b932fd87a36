package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ledgerly/agentgate/internal/broker/domain"
	"github.com/ledgerly/agentgate/internal/broker/store"
	"github.com/ledgerly/agentgate/pkg/cryptox"
	"github.com/ledgerly/agentgate/pkg/idx"
	"github.com/ledgerly/agentgate/pkg/slogx"
)

const maxClientNameLength = 100

// ClientService handles dynamic client registration and lookup.
type ClientService struct {
	Store store.Store
}

// RegisterRequest is a dynamic client registration request.
type RegisterRequest struct {
	Name         string
	RedirectURIs []string
	AuthMethod   string
}

// Register validates and stores a new client. For confidential clients a
// plaintext secret is generated and returned exactly once; only its argon2
// hash is stored.
func (s *ClientService) Register(ctx context.Context, req RegisterRequest) (domain.Client, string, error) {
	l := slogx.FromContext(ctx)

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxClientNameLength {
		return domain.Client{}, "", ErrInvalidRequest
	}

	if len(req.RedirectURIs) == 0 {
		return domain.Client{}, "", ErrInvalidRedirectURI
	}
	for _, raw := range req.RedirectURIs {
		if err := validateRedirectURI(raw); err != nil {
			return domain.Client{}, "", ErrInvalidRedirectURI
		}
	}

	authMethod := req.AuthMethod
	if authMethod == "" {
		authMethod = domain.AuthMethodNone
	}
	if authMethod != domain.AuthMethodNone && authMethod != domain.AuthMethodClientSecretPost {
		return domain.Client{}, "", ErrInvalidRequest
	}

	var plaintextSecret, secretHash string
	if authMethod == domain.AuthMethodClientSecretPost {
		secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return domain.Client{}, "", fmt.Errorf("failed to generate client secret: %w", err)
		}
		hash, err := cryptox.HashSecret(secret)
		if err != nil {
			return domain.Client{}, "", fmt.Errorf("failed to hash client secret: %w", err)
		}
		plaintextSecret, secretHash = secret, hash
	}

	client := domain.Client{
		ID:           idx.New().String(),
		Name:         name,
		RedirectURIs: req.RedirectURIs,
		SecretHash:   secretHash,
		AuthMethod:   authMethod,
		CreatedAt:    time.Now(),
	}
	if err := s.Store.Clients().CreateClient(ctx, client); err != nil {
		return domain.Client{}, "", fmt.Errorf("failed to store client: %w", err)
	}

	l.Info("client registered",
		slog.String("client_id", client.ID),
		slog.String("name", client.Name),
		slog.String("auth_method", client.AuthMethod))

	return client, plaintextSecret, nil
}

// Lookup returns a registered client by id.
func (s *ClientService) Lookup(ctx context.Context, clientID string) (domain.Client, error) {
	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}
	return client, nil
}

// List returns all registered clients, newest first.
func (s *ClientService) List(ctx context.Context) ([]domain.Client, error) {
	return s.Store.Clients().ListClients(ctx)
}

// Authenticate verifies a client's credentials for the posted auth method.
// Public clients pass with an empty secret; confidential clients must
// present the secret issued at registration.
func (s *ClientService) Authenticate(ctx context.Context, clientID, clientSecret string) (domain.Client, error) {
	client, err := s.Lookup(ctx, clientID)
	if err != nil {
		return domain.Client{}, err
	}

	if client.Confidential() {
		if clientSecret == "" || cryptox.VerifySecret(clientSecret, client.SecretHash) != nil {
			return domain.Client{}, ErrInvalidClient
		}
	}
	return client, nil
}

// validateRedirectURI requires an absolute URI with a scheme and either a
// host or a path, which admits both https URLs and loopback/custom schemes
// used by native agents.
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme == "" {
		return fmt.Errorf("redirect URI must be absolute: %q", raw)
	}
	if u.Host == "" && u.Path == "" {
		return fmt.Errorf("redirect URI has no host or path: %q", raw)
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect URI must not carry a fragment: %q", raw)
	}
	return nil
}
