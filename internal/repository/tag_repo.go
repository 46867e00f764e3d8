package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelops/netscout/internal/models"
)

// TagRepository defines the interface for tag data operations.
type TagRepository interface {
	Create(ctx context.Context, tag *models.Tag) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tag, error)
	GetByName(ctx context.Context, name string) (*models.Tag, error)
	List(ctx context.Context) ([]*models.Tag, error)
	Delete(ctx context.Context, id uuid.UUID) error

	AttachToHost(ctx context.Context, mac string, tagID uuid.UUID) error
	DetachFromHost(ctx context.Context, mac string, tagID uuid.UUID) error
	ListForHost(ctx context.Context, mac string) ([]*models.Tag, error)
}

type tagRepo struct {
	pool *pgxpool.Pool
}

// NewTagRepository creates a new tag repository.
func NewTagRepository(pool *pgxpool.Pool) TagRepository {
	return &tagRepo{pool: pool}
}

// Create inserts a new tag.
func (r *tagRepo) Create(ctx context.Context, tag *models.Tag) error {
	query := `
		INSERT INTO tags (id, name, color, description)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	if tag.ID == uuid.Nil {
		tag.ID = uuid.New()
	}
	if tag.Color == "" {
		tag.Color = "#3b82f6"
	}
	return r.pool.QueryRow(ctx, query, tag.ID, tag.Name, tag.Color, tag.Description).
		Scan(&tag.CreatedAt)
}

func scanTagRow(row pgx.Row) (*models.Tag, error) {
	var t models.Tag
	err := row.Scan(&t.ID, &t.Name, &t.Color, &t.Description, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByID retrieves a tag by its UUID.
func (r *tagRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	query := `SELECT id, name, color, description, created_at FROM tags WHERE id = $1`
	return scanTagRow(r.pool.QueryRow(ctx, query, id))
}

// GetByName retrieves a tag by its unique name.
func (r *tagRepo) GetByName(ctx context.Context, name string) (*models.Tag, error) {
	query := `SELECT id, name, color, description, created_at FROM tags WHERE name = $1`
	return scanTagRow(r.pool.QueryRow(ctx, query, name))
}

// List retrieves all tags in name order.
func (r *tagRepo) List(ctx context.Context) ([]*models.Tag, error) {
	query := `SELECT id, name, color, description, created_at FROM tags ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		t, err := scanTagRow(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// Delete removes a tag and, via cascade, its host associations.
func (r *tagRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// AttachToHost associates a tag with a host. Attaching twice is a no-op.
func (r *tagRepo) AttachToHost(ctx context.Context, mac string, tagID uuid.UUID) error {
	query := `
		INSERT INTO host_tags (host_mac, tag_id)
		VALUES ($1, $2)
		ON CONFLICT (host_mac, tag_id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query, mac, tagID)
	return err
}

// DetachFromHost removes a tag from a host.
func (r *tagRepo) DetachFromHost(ctx context.Context, mac string, tagID uuid.UUID) error {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM host_tags WHERE host_mac = $1 AND tag_id = $2`, mac, tagID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListForHost retrieves the tags attached to one host.
func (r *tagRepo) ListForHost(ctx context.Context, mac string) ([]*models.Tag, error) {
	query := `
		SELECT t.id, t.name, t.color, t.description, t.created_at
		FROM host_tags ht JOIN tags t ON t.id = ht.tag_id
		WHERE ht.host_mac = $1
		ORDER BY t.name ASC`

	rows, err := r.pool.Query(ctx, query, mac)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		t, err := scanTagRow(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// Compile-time check to ensure tagRepo implements TagRepository.
var _ TagRepository = (*tagRepo)(nil)
