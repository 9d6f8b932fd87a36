package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ledgerly/agentgate/internal/broker/domain"
)

type clientsRepo struct {
	db *sql.DB
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, redirect_uris, secret_hash, auth_method, created_at
		FROM clients
		WHERE id = ?`, id)

	c, err := scanClient(row)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	return c, nil
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, redirect_uris, secret_hash, auth_method, created_at
		FROM clients
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	var secretHash sql.NullString
	if c.SecretHash != "" {
		secretHash = sql.NullString{String: c.SecretHash, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, redirect_uris, secret_hash, auth_method, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Name,
		strings.Join(c.RedirectURIs, " "),
		secretHash,
		c.AuthMethod,
		c.CreatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (domain.Client, error) {
	var (
		c            domain.Client
		redirectURIs string
		secretHash   sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &redirectURIs, &secretHash, &c.AuthMethod, &c.CreatedAt); err != nil {
		return domain.Client{}, err
	}

	c.RedirectURIs = strings.Fields(redirectURIs)
	if secretHash.Valid {
		c.SecretHash = secretHash.String
	}
	return c, nil
}
