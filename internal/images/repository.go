package images

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Repository persists image metadata.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores one metadata row.
func (r *Repository) Insert(ctx context.Context, img Image) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO document_images
(entity_type, entity_id, object_key, url, content_type, size_bytes, sort_order, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,now())
RETURNING id`,
		string(img.EntityType), img.EntityID, img.ObjectKey, img.URL, img.ContentType, img.SizeBytes, img.SortOrder).Scan(&id)
	return id, err
}

// Get returns one image row by id.
func (r *Repository) Get(ctx context.Context, id int64) (Image, error) {
	var img Image
	var entity string
	err := r.pool.QueryRow(ctx, `SELECT id, entity_type, entity_id, object_key, url, content_type, size_bytes, sort_order, created_at
FROM document_images WHERE id=$1`, id).
		Scan(&img.ID, &entity, &img.EntityID, &img.ObjectKey, &img.URL, &img.ContentType, &img.SizeBytes, &img.SortOrder, &img.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Image{}, shared.NotFoundf("image %d", id)
		}
		return Image{}, err
	}
	img.EntityType = EntityType(entity)
	return img, nil
}

// Delete removes one metadata row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM document_images WHERE id=$1`, id)
	return err
}

// ListByEntity returns a document's images in display order.
func (r *Repository) ListByEntity(ctx context.Context, entityType EntityType, entityID int64) ([]Image, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, entity_type, entity_id, object_key, url, content_type, size_bytes, sort_order, created_at
FROM document_images WHERE entity_type=$1 AND entity_id=$2 ORDER BY sort_order, id`, string(entityType), entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var images []Image
	for rows.Next() {
		var img Image
		var entity string
		if err := rows.Scan(&img.ID, &entity, &img.EntityID, &img.ObjectKey, &img.URL, &img.ContentType, &img.SizeBytes, &img.SortOrder, &img.CreatedAt); err != nil {
			return nil, err
		}
		img.EntityType = EntityType(entity)
		images = append(images, img)
	}
	return images, rows.Err()
}

// MaxSortOrder returns the highest sort order for a document, zero when empty.
func (r *Repository) MaxSortOrder(ctx context.Context, entityType EntityType, entityID int64) (int, error) {
	var max int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(sort_order), 0) FROM document_images
WHERE entity_type=$1 AND entity_id=$2`, string(entityType), entityID).Scan(&max)
	return max, err
}
