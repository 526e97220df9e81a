package postgres

import (
	"context"
	"database/sql"

	"github.com/kozaktomas/vault-watch/internal/store"
)

// ImageRepository stores captured face crops as bytea rows. Crops are
// small downscaled JPEGs, so a table is a better fit than an external
// object store.
type ImageRepository struct {
	pool *Pool
}

// NewImageRepository creates a new PostgreSQL image repository.
func NewImageRepository(pool *Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

var _ store.ImageStore = (*ImageRepository)(nil)

// Put stores an encoded image under the key, replacing previous content.
func (r *ImageRepository) Put(ctx context.Context, key string, data []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO images (key, data)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, created_at = NOW()
	`, key, data)
	if err != nil {
		return transient("store image", err)
	}
	return nil
}

// Fetch retrieves an image by key.
func (r *ImageRepository) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, "SELECT data FROM images WHERE key = $1", key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, transient("fetch image", err)
	}
	return data, true, nil
}

// Delete removes an image, reporting whether it existed.
func (r *ImageRepository) Delete(ctx context.Context, key string) (bool, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM images WHERE key = $1", key)
	if err != nil {
		return false, transient("delete image", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, transient("delete image", err)
	}
	return affected > 0, nil
}
