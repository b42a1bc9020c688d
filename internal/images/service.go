package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// BlobPort abstracts the object store.
type BlobPort interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// RepositoryPort describes metadata persistence used by Service.
type RepositoryPort interface {
	Insert(ctx context.Context, img Image) (int64, error)
	Get(ctx context.Context, id int64) (Image, error)
	Delete(ctx context.Context, id int64) error
	ListByEntity(ctx context.Context, entityType EntityType, entityID int64) ([]Image, error)
	MaxSortOrder(ctx context.Context, entityType EntityType, entityID int64) (int, error)
}

// Service uploads attachments and records their metadata.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	blobs  BlobPort
}

// NewService constructs images service.
func NewService(logger *slog.Logger, repo RepositoryPort, blobs BlobPort) *Service {
	return &Service{logger: logger, repo: repo, blobs: blobs}
}

// File is one upload payload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Attach uploads files for a document. Each file succeeds or fails on its
// own; a failed upload is reported in the result, never as an error that
// would suggest the document itself failed.
func (s *Service) Attach(ctx context.Context, entityType EntityType, entityID int64, files []File) (UploadResult, error) {
	if entityID == 0 {
		return UploadResult{}, shared.Validationf("entity id required")
	}
	if len(files) == 0 {
		return UploadResult{}, shared.Validationf("at least one file required")
	}
	order, err := s.repo.MaxSortOrder(ctx, entityType, entityID)
	if err != nil {
		return UploadResult{}, err
	}
	var result UploadResult
	for _, file := range files {
		order++
		key := fmt.Sprintf("%s/%d/%d-%s-%s", entityType, entityID, order, uuid.NewString()[:8], file.Name)
		url, err := s.blobs.Put(ctx, key, file.ContentType, file.Body)
		if err != nil {
			s.logger.Warn("image upload failed", slog.Any("error", err), slog.String("key", key))
			result.Failed = append(result.Failed, file.Name)
			continue
		}
		img := Image{
			EntityType:  entityType,
			EntityID:    entityID,
			ObjectKey:   key,
			URL:         url,
			ContentType: file.ContentType,
			SizeBytes:   file.Size,
			SortOrder:   order,
		}
		id, err := s.repo.Insert(ctx, img)
		if err != nil {
			s.logger.Warn("image metadata insert failed", slog.Any("error", err), slog.String("key", key))
			result.Failed = append(result.Failed, file.Name)
			continue
		}
		img.ID = id
		result.Stored = append(result.Stored, img)
	}
	return result, nil
}

// List returns a document's images in display order.
func (s *Service) List(ctx context.Context, entityType EntityType, entityID int64) ([]Image, error) {
	return s.repo.ListByEntity(ctx, entityType, entityID)
}

// Remove deletes one attachment, object first so a failed blob delete keeps
// the metadata row and the call stays retryable.
func (s *Service) Remove(ctx context.Context, entityType EntityType, imageID int64) error {
	img, err := s.repo.Get(ctx, imageID)
	if err != nil {
		return err
	}
	if img.EntityType != entityType {
		return shared.NotFoundf("image %d", imageID)
	}
	if err := s.blobs.Delete(ctx, img.ObjectKey); err != nil {
		s.logger.Warn("image object delete failed", slog.Any("error", err), slog.String("key", img.ObjectKey))
		return err
	}
	return s.repo.Delete(ctx, imageID)
}
