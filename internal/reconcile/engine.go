package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/leaseledger/lease-ledger-api/internal/models"
	"github.com/leaseledger/lease-ledger-api/internal/repository"
	"github.com/leaseledger/lease-ledger-api/internal/utils"
)

// ErrBadDocumentDate marks a field set whose document_date did not parse. The
// date is the ordering key for reconciliation, so the document cannot be
// applied without it.
var ErrBadDocumentDate = fmt.Errorf("document date is missing or unparseable")

// Engine applies one document's extracted field set to the location ledger.
//
// Ordering is decided by the document's own date, never by arrival order: a
// document older than or dated equal to the newest document already on file is
// recorded into history but changes nothing on the live Location. Invoices
// refresh billing fields only; they never redefine lease terms.
type Engine struct {
	repo   *repository.Repository
	logger *utils.Logger
}

func NewEngine(repo *repository.Repository, logger *utils.Logger) *Engine {
	return &Engine{repo: repo, logger: logger}
}

// Apply runs the reconciliation transition for the placeholder identified by
// placeholderID. The whole transition commits atomically; on error nothing is
// written and the caller is responsible for marking the placeholder failed.
//
// A unique-constraint violation means another upload completed a Location with
// the same name between our read and our write. That loser retries once and
// lands in the update path against the row that beat it.
func (e *Engine) Apply(ctx context.Context, placeholderID, fileURL string, fields *models.FieldSet) error {
	docDate, err := time.Parse(models.DateFormat, fields.DocumentDate)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadDocumentDate, fields.DocumentDate)
	}

	err = e.apply(ctx, placeholderID, fileURL, fields, docDate)
	if repository.IsUniqueViolation(err) {
		e.logger.Warn("Completed location appeared concurrently, retrying as update",
			"placeholder_id", placeholderID,
			"location_name", fields.LocationName)
		err = e.apply(ctx, placeholderID, fileURL, fields, docDate)
	}
	return err
}

func (e *Engine) apply(ctx context.Context, placeholderID, fileURL string, fields *models.FieldSet, docDate time.Time) error {
	return e.repo.WithTx(ctx, func(tx *sqlx.Tx) error {
		current, err := e.repo.GetByIDTx(ctx, tx, placeholderID)
		if err != nil {
			return fmt.Errorf("load placeholder: %w", err)
		}
		if current == nil {
			return fmt.Errorf("placeholder %s no longer exists", placeholderID)
		}

		existing, err := e.repo.GetCompletedByNameTx(ctx, tx, fields.LocationName)
		if err != nil {
			return fmt.Errorf("look up completed location: %w", err)
		}

		ownerID := current.ID

		if existing == nil {
			// First document ever seen for this name: the placeholder
			// becomes the Location's baseline.
			copyLeaseFields(current, fields)
			copyInvoiceFields(current, fields)
			current.Status = models.StatusCompleted
			if err := e.repo.SaveLocationTx(ctx, tx, current); err != nil {
				return err
			}
			e.logger.Info("New location completed",
				"location_id", current.ID,
				"location_name", current.LocationName,
				"document_date", fields.DocumentDate)
		} else {
			ownerID = existing.ID

			lastDate, hasHistory, err := e.repo.LatestDocumentDateTx(ctx, tx, existing.ID)
			if err != nil {
				return fmt.Errorf("load leading edge: %w", err)
			}

			newer := !hasHistory
			if hasHistory {
				last, err := time.Parse(models.DateFormat, lastDate)
				if err != nil {
					return fmt.Errorf("stored document date %q unparseable: %w", lastDate, err)
				}
				// Strictly greater: an equal date is not newer, so
				// same-dated duplicates never overwrite.
				newer = docDate.After(last)
			}

			if newer {
				if fields.DocumentType != models.DocumentTypeInvoice {
					copyLeaseFields(existing, fields)
				}
				// Invoices carry the freshest billing data even though
				// they do not redefine lease terms.
				copyInvoiceFields(existing, fields)
				existing.Status = models.StatusCompleted
				if err := e.repo.SaveLocationTx(ctx, tx, existing); err != nil {
					return err
				}
				e.logger.Info("Location updated from newer document",
					"location_id", existing.ID,
					"location_name", existing.LocationName,
					"document_type", fields.DocumentType,
					"document_date", fields.DocumentDate)
			} else {
				e.logger.Info("Document older than leading edge, recorded to history only",
					"location_id", existing.ID,
					"document_date", fields.DocumentDate,
					"leading_edge", lastDate)
			}

			// A placeholder absorbed into another row becomes mapped. When
			// existing is the placeholder itself (reprocessing after a
			// crash) the merge above was idempotent and there is nothing
			// to absorb.
			if existing.ID != current.ID {
				if err := e.repo.SetStatusTx(ctx, tx, current.ID, models.StatusMapped); err != nil {
					return fmt.Errorf("mark placeholder mapped: %w", err)
				}
			}
		}

		doc := snapshotDocument(ownerID, fileURL, fields)
		if err := e.repo.InsertDocumentTx(ctx, tx, doc); err != nil {
			return fmt.Errorf("append document history: %w", err)
		}

		return nil
	})
}

// copyLeaseFields overwrites the lease-term fields a non-invoice document is
// allowed to redefine.
func copyLeaseFields(loc *models.Location, fields *models.FieldSet) {
	loc.LocationName = fields.LocationName
	loc.LocationAddress = fields.LocationAddress
	loc.StartDate = fields.StartDate
	loc.EndDate = fields.EndDate
	loc.CooperationType = fields.CooperationType
	loc.PaymentTerms = fields.PaymentTerms
	loc.MonthlyCostAmount = fields.MonthlyCostAmount
	loc.SecurityDepositAmount = fields.SecurityDepositAmount
	loc.AdditionalInfo = fields.AdditionalInfo
}

// copyInvoiceFields overwrites the billing fields every document refreshes.
func copyInvoiceFields(loc *models.Location, fields *models.FieldSet) {
	loc.LastInvoiceDue = fields.LastInvoiceDue
	loc.LastInvoiceAmount = fields.LastInvoiceAmount
}

// snapshotDocument builds the immutable history row carrying the document's
// own extracted values, independent of what won reconciliation.
func snapshotDocument(locationID, fileURL string, fields *models.FieldSet) *models.ContractDocument {
	return &models.ContractDocument{
		ID:                    utils.GenerateID(),
		LocationID:            locationID,
		FileURL:               fileURL,
		UploadedAt:            fields.DocumentDate,
		DocumentType:          fields.DocumentType,
		StartDate:             fields.StartDate,
		EndDate:               fields.EndDate,
		CooperationType:       fields.CooperationType,
		PaymentTerms:          fields.PaymentTerms,
		MonthlyCostAmount:     fields.MonthlyCostAmount,
		SecurityDepositAmount: fields.SecurityDepositAmount,
		LastInvoiceDue:        fields.LastInvoiceDue,
		LastInvoiceAmount:     fields.LastInvoiceAmount,
		AdditionalInfo:        fields.AdditionalInfo,
		CreatedAt:             time.Now(),
	}
}
