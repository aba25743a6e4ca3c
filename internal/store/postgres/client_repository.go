package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/authrim/authrim/internal/oauth2"
)

// ClientRepository implements oauth2.ClientRepository
type ClientRepository struct {
	db *DB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

const clientColumns = `
	id, client_id, client_secret_hash, client_secret_old_hash, secret_old_expires_at,
	client_name, description, redirect_uris, grant_types, scopes,
	is_public, is_active, owner_id, created_at, updated_at`

// Create creates a new client
func (r *ClientRepository) Create(ctx context.Context, client *oauth2.Client) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO clients (
			id, client_id, client_secret_hash, client_secret_old_hash, secret_old_expires_at,
			client_name, description, redirect_uris, grant_types, scopes,
			is_public, is_active, owner_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		client.ID, client.ClientID, client.ClientSecretHash, client.ClientSecretOldHash, client.SecretOldExpiresAt,
		client.ClientName, client.Description, client.RedirectURIs, client.GrantTypes, client.Scopes,
		client.IsPublic, client.IsActive, client.OwnerID, client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetByClientID retrieves a client by its public client_id
func (r *ClientRepository) GetByClientID(ctx context.Context, clientID string) (*oauth2.Client, error) {
	return r.getOne(ctx, "client_id = $1", clientID)
}

// GetByID retrieves a client by its internal id
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*oauth2.Client, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *ClientRepository) getOne(ctx context.Context, where string, arg any) (*oauth2.Client, error) {
	var client oauth2.Client
	err := r.db.pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE `+where,
		arg,
	).Scan(
		&client.ID, &client.ClientID, &client.ClientSecretHash, &client.ClientSecretOldHash, &client.SecretOldExpiresAt,
		&client.ClientName, &client.Description, &client.RedirectURIs, &client.GrantTypes, &client.Scopes,
		&client.IsPublic, &client.IsActive, &client.OwnerID, &client.CreatedAt, &client.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &client, nil
}

// Update replaces the stored client row
func (r *ClientRepository) Update(ctx context.Context, client *oauth2.Client) error {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE clients SET
			client_secret_hash = $2, client_secret_old_hash = $3, secret_old_expires_at = $4,
			client_name = $5, description = $6, redirect_uris = $7, grant_types = $8,
			scopes = $9, is_public = $10, is_active = $11, updated_at = $12
		WHERE id = $1
	`,
		client.ID, client.ClientSecretHash, client.ClientSecretOldHash, client.SecretOldExpiresAt,
		client.ClientName, client.Description, client.RedirectURIs, client.GrantTypes,
		client.Scopes, client.IsPublic, client.IsActive, client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if result.RowsAffected() == 0 {
		return oauth2.ErrClientNotFound
	}
	return nil
}

// ListByOwner lists active clients registered by the user, newest first
func (r *ClientRepository) ListByOwner(ctx context.Context, ownerID string) ([]*oauth2.Client, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE owner_id = $1 AND is_active ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*oauth2.Client
	for rows.Next() {
		var client oauth2.Client
		if err := rows.Scan(
			&client.ID, &client.ClientID, &client.ClientSecretHash, &client.ClientSecretOldHash, &client.SecretOldExpiresAt,
			&client.ClientName, &client.Description, &client.RedirectURIs, &client.GrantTypes, &client.Scopes,
			&client.IsPublic, &client.IsActive, &client.OwnerID, &client.CreatedAt, &client.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, &client)
	}
	return clients, rows.Err()
}
