package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/app/repositories"
	"github.com/yigit/educhat/internal/pkg/apperrors"
	"github.com/yigit/educhat/internal/pkg/filestorage"
	"github.com/yigit/educhat/internal/pkg/metrics"
)

// sniffLen is how many leading bytes are inspected to detect a mime type
const sniffLen = 3072

// RepairReport summarizes one placeholder repair pass
type RepairReport struct {
	Checked  int      `json:"checked"`
	Repaired []string `json:"repaired"`
	Failed   []string `json:"failed"`
}

// AttachmentService stores uploaded binaries
type AttachmentService interface {
	// Upload stores r under a fresh <millis>_<name> storage name. Nothing
	// is appended to any chat.
	Upload(ctx context.Context, r io.Reader, originalName, declaredMime string) (models.FileRef, error)
	URL(ctx context.Context, storedName string) (string, error)
	// Discard removes a binary stored by Upload that no message ended up
	// referencing
	Discard(ctx context.Context, storedName string) error
	// RepairMissing writes a placeholder for every referenced attachment
	// whose binary is gone
	RepairMissing(ctx context.Context) (RepairReport, error)
}

type attachmentServiceImpl struct {
	storage filestorage.FileStorage
	refs    repositories.MessageRepository
	now     func() time.Time
	logger  zerolog.Logger
}

// NewAttachmentService creates a new AttachmentService
func NewAttachmentService(
	storage filestorage.FileStorage,
	refs repositories.MessageRepository,
	logger zerolog.Logger,
) AttachmentService {
	return &attachmentServiceImpl{
		storage: storage,
		refs:    refs,
		now:     time.Now,
		logger:  logger,
	}
}

// Upload stores the binary and describes it
func (s *attachmentServiceImpl) Upload(ctx context.Context, r io.Reader, originalName, declaredMime string) (models.FileRef, error) {
	if originalName == "" {
		return models.FileRef{}, apperrors.NewValidationError("file", "file name is required")
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		metrics.Uploads.WithLabelValues("failed").Inc()
		return models.FileRef{}, apperrors.NewStorageError(err)
	}
	head = head[:n]

	mimeType := resolveMime(declaredMime, head)
	ref := models.FileRef{
		StoredName:   filestorage.StoredName(s.now(), originalName),
		OriginalName: filestorage.CleanBase(originalName),
		MimeType:     mimeType,
	}

	size, err := s.storage.Save(ctx, ref.StoredName, io.MultiReader(bytes.NewReader(head), r), mimeType)
	if err != nil {
		metrics.Uploads.WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Str("originalName", originalName).Msg("Failed to store attachment")
		return models.FileRef{}, apperrors.NewStorageError(err)
	}
	ref.Size = size

	metrics.Uploads.WithLabelValues("stored").Inc()
	s.logger.Info().
		Str("storedName", ref.StoredName).
		Int64("size", ref.Size).
		Str("mimeType", ref.MimeType).
		Msg("Attachment stored")
	return ref, nil
}

// resolveMime prefers a specific declared type and falls back to sniffing
func resolveMime(declared string, head []byte) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
			return mediaType
		}
	}
	detected := mimetype.Detect(head).String()
	if mediaType, _, err := mime.ParseMediaType(detected); err == nil {
		return mediaType
	}
	return detected
}

// URL returns the download address of a stored attachment
func (s *attachmentServiceImpl) URL(ctx context.Context, storedName string) (string, error) {
	return s.storage.URL(ctx, storedName)
}

// Discard deletes an unreferenced upload
func (s *attachmentServiceImpl) Discard(ctx context.Context, storedName string) error {
	if err := s.storage.Delete(ctx, storedName); err != nil {
		s.logger.Error().Err(err).Str("storedName", storedName).Msg("Failed to discard attachment")
		return apperrors.NewStorageError(err)
	}
	metrics.Uploads.WithLabelValues("discarded").Inc()
	s.logger.Info().Str("storedName", storedName).Msg("Attachment discarded")
	return nil
}

// RepairMissing checks every referenced attachment and writes placeholders.
// Individual failures are reported, not returned.
func (s *attachmentServiceImpl) RepairMissing(ctx context.Context) (RepairReport, error) {
	report := RepairReport{Repaired: []string{}, Failed: []string{}}

	refs, err := s.refs.ListFileRefs(ctx)
	if err != nil {
		return report, err
	}

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		exists, err := s.storage.Exists(ctx, ref.StoredName)
		if err != nil {
			s.logger.Warn().Err(err).Str("storedName", ref.StoredName).Msg("Failed to check attachment")
			report.Failed = append(report.Failed, ref.StoredName)
			continue
		}
		if exists {
			continue
		}

		placeholder := filestorage.Placeholder(ref.DisplayName())
		if _, err := s.storage.Save(ctx, ref.StoredName, bytes.NewReader(placeholder), "text/plain"); err != nil {
			s.logger.Warn().Err(err).Str("storedName", ref.StoredName).Msg("Failed to write placeholder")
			report.Failed = append(report.Failed, ref.StoredName)
			continue
		}
		metrics.RepairedFiles.Inc()
		report.Repaired = append(report.Repaired, ref.StoredName)
	}

	if len(report.Repaired) > 0 || len(report.Failed) > 0 {
		s.logger.Info().
			Int("checked", report.Checked).
			Int("repaired", len(report.Repaired)).
			Int("failed", len(report.Failed)).
			Msg("Attachment repair finished")
	}
	return report, nil
}
