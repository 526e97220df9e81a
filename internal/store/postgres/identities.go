package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/vault-watch/internal/store"
	"github.com/pgvector/pgvector-go"
)

// IdentityRepository provides PostgreSQL-backed identity storage.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

var _ store.IdentityStore = (*IdentityRepository)(nil)

// LoadAll returns every enrolled identity ordered by name.
func (r *IdentityRepository) LoadAll(ctx context.Context) ([]store.Identity, error) {
	query := `
		SELECT name, embedding, match_count, enrolled_at, updated_at
		FROM identities
		ORDER BY name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, transient("load identities", err)
	}
	defer rows.Close()

	var identities []store.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		return nil, transient("iterate identities", err)
	}
	return identities, nil
}

// Get retrieves an identity by name.
func (r *IdentityRepository) Get(ctx context.Context, name string) (*store.Identity, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT name, embedding, match_count, enrolled_at, updated_at
		FROM identities
		WHERE name = $1
	`, name)

	id, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &id, true, nil
}

// Create enrolls a new identity. An existing name is reported as a
// NameConflictError, never silently overwritten.
func (r *IdentityRepository) Create(ctx context.Context, id store.Identity) error {
	result, err := r.pool.Exec(ctx, `
		INSERT INTO identities (name, embedding, match_count, enrolled_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (name) DO NOTHING
	`, id.Name, pgvector.NewVector(id.Embedding), id.MatchCount)
	if err != nil {
		return transient("insert identity", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return transient("insert identity", err)
	}
	if affected == 0 {
		return &store.NameConflictError{Name: id.Name}
	}
	return nil
}

// UpdateEmbedding overwrites the reference embedding and match count of
// an existing identity.
func (r *IdentityRepository) UpdateEmbedding(ctx context.Context, name string, embedding []float32, matchCount int64) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE identities
		SET embedding = $2, match_count = $3, updated_at = NOW()
		WHERE name = $1
	`, name, pgvector.NewVector(embedding), matchCount)
	if err != nil {
		return transient("update identity embedding", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return transient("update identity embedding", err)
	}
	if affected == 0 {
		return fmt.Errorf("identity %q does not exist", name)
	}
	return nil
}

// Delete removes an identity, reporting whether it existed.
func (r *IdentityRepository) Delete(ctx context.Context, name string) (bool, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM identities WHERE name = $1", name)
	if err != nil {
		return false, transient("delete identity", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, transient("delete identity", err)
	}
	return affected > 0, nil
}

// Count returns the number of enrolled identities.
func (r *IdentityRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM identities").Scan(&count); err != nil {
		return 0, transient("count identities", err)
	}
	return count, nil
}

func scanIdentity(scanner interface{ Scan(...any) error }) (store.Identity, error) {
	var id store.Identity
	var vec pgvector.Vector

	err := scanner.Scan(&id.Name, &vec, &id.MatchCount, &id.EnrolledAt, &id.UpdatedAt)
	if err == sql.ErrNoRows {
		return id, err
	}
	if err != nil {
		return id, fmt.Errorf("scan identity: %w", err)
	}

	id.Embedding = vec.Slice()
	return id, nil
}
