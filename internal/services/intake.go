package services

import (
	"context"
	"fmt"
	"time"

	"github.com/leaseledger/lease-ledger-api/internal/analyzer"
	"github.com/leaseledger/lease-ledger-api/internal/models"
	"github.com/leaseledger/lease-ledger-api/internal/reconcile"
	"github.com/leaseledger/lease-ledger-api/internal/repository"
	"github.com/leaseledger/lease-ledger-api/internal/storage"
	"github.com/leaseledger/lease-ledger-api/internal/utils"
)

// TextExtractor is the boundary to text extraction; native vs OCR selection
// lives behind it.
type TextExtractor interface {
	Text(ctx context.Context, data []byte) (string, error)
}

// IntakeService accepts uploads, runs each document's background unit of work
// and answers status polls. Failures inside the unit of work are never
// surfaced to the submitter; they are observable only through polling.
type IntakeService interface {
	SubmitDocument(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error)
	DocumentStatus(ctx context.Context, id string) (*models.StatusResponse, error)
	ListLocations(ctx context.Context) ([]models.LocationWithDocuments, error)
}

type intakeService struct {
	repo      *repository.Repository
	storage   storage.Storage
	extractor TextExtractor
	fields    analyzer.FieldExtractor
	engine    *reconcile.Engine
	logger    *utils.Logger
	timeout   time.Duration
}

// NewIntakeService wires the injected adapters. All dependencies are
// constructed once at process start and held for the process lifetime.
func NewIntakeService(
	repo *repository.Repository,
	store storage.Storage,
	extractor TextExtractor,
	fields analyzer.FieldExtractor,
	engine *reconcile.Engine,
	timeout time.Duration,
	logger *utils.Logger,
) IntakeService {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &intakeService{
		repo:      repo,
		storage:   store,
		extractor: extractor,
		fields:    fields,
		engine:    engine,
		logger:    logger,
		timeout:   timeout,
	}
}

func (s *intakeService) SubmitDocument(ctx context.Context, req *models.UploadRequest) (*models.UploadResponse, error) {
	if len(req.File) == 0 {
		return nil, utils.NewBadRequestError("Uploaded file is empty")
	}

	now := time.Now()
	placeholder := &models.Location{
		ID:           utils.GenerateID(),
		LocationName: req.Filename,
		Status:       models.StatusProcessing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreatePlaceholder(ctx, placeholder); err != nil {
		s.logger.Error("Failed to create placeholder", "error", err, "filename", req.Filename)
		return nil, utils.NewInternalError("Failed to register document")
	}

	s.logger.Info("Document accepted",
		"id", placeholder.ID,
		"filename", req.Filename,
		"size", len(req.File))

	go s.processDocument(placeholder.ID, req.Filename, req.File)

	return &models.UploadResponse{
		ID:        placeholder.ID,
		Filename:  req.Filename,
		Status:    models.StatusProcessing,
		CreatedAt: now,
		Message:   "Document accepted for processing. Poll /documents/{id}/status for completion.",
	}, nil
}

// processDocument is the background unit of work for one upload: store the
// blob, extract text and fields, then hand off to the reconciliation engine.
// Blob upload and extraction run outside the ledger transaction; only the
// engine's transition is atomic.
func (s *intakeService) processDocument(id, filename string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	fileURL, err := s.storage.Store(ctx, filename, data)
	if err != nil {
		s.fail(ctx, id, fmt.Errorf("store blob: %w", err))
		return
	}

	text, err := s.extractor.Text(ctx, data)
	if err != nil {
		s.fail(ctx, id, fmt.Errorf("extract text: %w", err))
		s.cleanupBlob(ctx, fileURL)
		return
	}

	knownNames, err := s.repo.ListCompletedNames(ctx)
	if err != nil {
		s.fail(ctx, id, fmt.Errorf("list known locations: %w", err))
		return
	}

	fields, err := s.fields.ExtractFields(ctx, text, knownNames)
	if err != nil {
		s.fail(ctx, id, fmt.Errorf("extract fields: %w", err))
		s.cleanupBlob(ctx, fileURL)
		return
	}

	if err := s.engine.Apply(ctx, id, fileURL, fields); err != nil {
		s.fail(ctx, id, fmt.Errorf("reconcile: %w", err))
		return
	}

	s.logger.Info("Document processed",
		"id", id,
		"location_name", fields.LocationName,
		"document_type", fields.DocumentType)
}

// fail marks the placeholder failed in its own transaction so the outcome
// stays visible to the polling client even after a rollback. A failure of the
// marking itself is only logged.
func (s *intakeService) fail(ctx context.Context, id string, cause error) {
	s.logger.Error("Document processing failed", "id", id, "error", cause)
	if err := s.repo.UpdateStatus(ctx, id, models.StatusFailed); err != nil {
		s.logger.Error("Failed to mark document failed", "id", id, "error", err)
	}
}

// cleanupBlob removes a stored blob that will never gain a history row.
// Documents that reached reconciliation keep their blob for audit even when
// the transition fails.
func (s *intakeService) cleanupBlob(ctx context.Context, fileURL string) {
	if err := s.storage.Delete(ctx, fileURL); err != nil {
		s.logger.Warn("Failed to delete orphaned blob", "file_url", fileURL, "error", err)
	}
}

// DocumentStatus answers a status poll. A mapped placeholder was absorbed into
// another Location: it reports completed exactly once and is deleted as a
// dedicated consume transition; the next poll sees not found.
func (s *intakeService) DocumentStatus(ctx context.Context, id string) (*models.StatusResponse, error) {
	loc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to load document status", "error", err, "id", id)
		return nil, utils.NewInternalError("Failed to retrieve document status")
	}
	if loc == nil {
		return nil, utils.NewNotFoundError("Document not found")
	}

	if loc.Status == models.StatusMapped {
		consumed, err := s.repo.ConsumeMapped(ctx, id)
		if err != nil {
			s.logger.Error("Failed to consume mapped placeholder", "error", err, "id", id)
			return nil, utils.NewInternalError("Failed to retrieve document status")
		}
		if !consumed {
			// Lost a concurrent poll; the placeholder is already gone.
			return nil, utils.NewNotFoundError("Document not found")
		}
		return &models.StatusResponse{Status: string(models.StatusCompleted)}, nil
	}

	return &models.StatusResponse{Status: string(loc.Status)}, nil
}

func (s *intakeService) ListLocations(ctx context.Context) ([]models.LocationWithDocuments, error) {
	locations, err := s.repo.ListCompleted(ctx)
	if err != nil {
		s.logger.Error("Failed to list locations", "error", err)
		return nil, utils.NewInternalError("Failed to list locations")
	}

	out := make([]models.LocationWithDocuments, 0, len(locations))
	for _, loc := range locations {
		docs, err := s.repo.DocumentsByLocation(ctx, loc.ID)
		if err != nil {
			s.logger.Error("Failed to load document history", "error", err, "location_id", loc.ID)
			return nil, utils.NewInternalError("Failed to list locations")
		}
		out = append(out, models.LocationWithDocuments{
			Location:          loc,
			ContractDocuments: docs,
		})
	}

	return out, nil
}
