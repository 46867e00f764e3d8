package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/sentinelops/netscout/internal/models"
	apierrors "github.com/sentinelops/netscout/internal/pkg/errors"
	"github.com/sentinelops/netscout/internal/repository"
)

// TagService defines the interface for tag management.
type TagService interface {
	Create(ctx context.Context, req CreateTagRequest) (*models.Tag, error)
	List(ctx context.Context) ([]*models.Tag, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CreateTagRequest is the request for creating a tag.
type CreateTagRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=64"`
	Color       string  `json:"color" validate:"omitempty,hexcolor"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=256"`
}

type tagService struct {
	tags repository.TagRepository
}

// NewTagService creates a new tag service.
func NewTagService(tags repository.TagRepository) TagService {
	return &tagService{tags: tags}
}

// Create inserts a new tag. Names are unique.
func (s *tagService) Create(ctx context.Context, req CreateTagRequest) (*models.Tag, error) {
	existing, err := s.tags.GetByName(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apierrors.NewConflictError("A tag with this name already exists")
	}

	tag := &models.Tag{
		Name:        req.Name,
		Color:       req.Color,
		Description: req.Description,
	}
	if err := s.tags.Create(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// List retrieves all tags.
func (s *tagService) List(ctx context.Context) ([]*models.Tag, error) {
	return s.tags.List(ctx)
}

// Delete removes a tag everywhere it is attached.
func (s *tagService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.tags.Delete(ctx, id); err != nil {
		return apierrors.NewNotFoundError("Tag")
	}
	return nil
}

// Compile-time check to ensure tagService implements TagService.
var _ TagService = (*tagService)(nil)
