package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/leaseledger/lease-ledger-api/internal/models"
)

const locationColumns = `id, location_name, location_address, start_date, end_date,
	cooperation_type, payment_terms, monthly_cost_amount, security_deposit_amount,
	last_invoice_due, last_invoice_amount, additional_info, status, created_at, updated_at`

const documentColumns = `id, location_id, file_url, uploaded_at, document_type,
	start_date, end_date, cooperation_type, payment_terms, monthly_cost_amount,
	security_deposit_amount, last_invoice_due, last_invoice_amount, additional_info, created_at`

// Repository is the ledger store. The reconciliation engine runs its critical
// section through WithTx and the *Tx methods; everything else uses the plain
// connection.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// WithTx runs fn inside a transaction, rolling back on error or panic.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is the store rejecting a duplicate
// completed location name. The modernc sqlite driver does not export a typed
// constraint error through database/sql, so this matches on the message.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreatePlaceholder inserts the transient Location row created at upload time.
func (r *Repository) CreatePlaceholder(ctx context.Context, loc *models.Location) error {
	query := `
		INSERT INTO locations (id, location_name, additional_info, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		loc.ID,
		loc.LocationName,
		encodeInfo(loc.AdditionalInfo),
		loc.Status,
		loc.CreatedAt,
		loc.UpdatedAt,
	)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id string) (*models.Location, error) {
	return getLocation(ctx, r.db, `SELECT `+locationColumns+` FROM locations WHERE id = ?`, id)
}

// GetByIDTx is GetByID inside the reconciliation transaction.
func (r *Repository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Location, error) {
	return getLocation(ctx, tx, `SELECT `+locationColumns+` FROM locations WHERE id = ?`, id)
}

// GetCompletedByNameTx returns the completed Location carrying name, or nil.
func (r *Repository) GetCompletedByNameTx(ctx context.Context, tx *sqlx.Tx, name string) (*models.Location, error) {
	return getLocation(ctx, tx,
		`SELECT `+locationColumns+` FROM locations WHERE location_name = ? AND status = ?`,
		name, models.StatusCompleted)
}

// SaveLocationTx writes every lease field of loc. The partial unique index on
// completed names makes this the failure point for the first-insert race.
func (r *Repository) SaveLocationTx(ctx context.Context, tx *sqlx.Tx, loc *models.Location) error {
	query := `
		UPDATE locations
		SET location_name = ?, location_address = ?, start_date = ?, end_date = ?,
		    cooperation_type = ?, payment_terms = ?, monthly_cost_amount = ?,
		    security_deposit_amount = ?, last_invoice_due = ?, last_invoice_amount = ?,
		    additional_info = ?, status = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := tx.ExecContext(ctx, query,
		loc.LocationName,
		loc.LocationAddress,
		loc.StartDate,
		loc.EndDate,
		loc.CooperationType,
		loc.PaymentTerms,
		loc.MonthlyCostAmount,
		loc.SecurityDepositAmount,
		loc.LastInvoiceDue,
		loc.LastInvoiceAmount,
		encodeInfo(loc.AdditionalInfo),
		loc.Status,
		time.Now(),
		loc.ID,
	)
	return err
}

// SetStatusTx tags a placeholder's lifecycle state inside the transaction.
func (r *Repository) SetStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status models.Status) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE locations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	return err
}

// UpdateStatus is the out-of-transaction variant used to mark a placeholder
// failed after a rollback.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE locations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	return err
}

// ConsumeMapped deletes a placeholder that was absorbed into another Location.
// The delete is guarded on status so it fires at most once; the document
// history rows belong to the surviving Location and are untouched.
func (r *Repository) ConsumeMapped(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM locations WHERE id = ? AND status = ?`,
		id, models.StatusMapped)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListCompletedNames returns the names handed to the field extraction adapter
// for location-name normalization.
func (r *Repository) ListCompletedNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.SelectContext(ctx, &names,
		`SELECT location_name FROM locations WHERE status = ? ORDER BY location_name`,
		models.StatusCompleted)
	return names, err
}

func (r *Repository) ListCompleted(ctx context.Context) ([]models.Location, error) {
	var rows []models.Location
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+locationColumns+` FROM locations WHERE status = ? ORDER BY location_name`,
		models.StatusCompleted)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if err := decodeInfo(&rows[i].AdditionalInfoRaw, &rows[i].AdditionalInfo); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// LatestDocumentDateTx returns the newest document date on file for a
// Location. ok is false when no document exists yet.
func (r *Repository) LatestDocumentDateTx(ctx context.Context, tx *sqlx.Tx, locationID string) (date string, ok bool, err error) {
	err = tx.QueryRowContext(ctx,
		`SELECT uploaded_at FROM contract_documents WHERE location_id = ? ORDER BY uploaded_at DESC LIMIT 1`,
		locationID).Scan(&date)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return date, true, nil
}

// InsertDocumentTx appends one immutable history row.
func (r *Repository) InsertDocumentTx(ctx context.Context, tx *sqlx.Tx, doc *models.ContractDocument) error {
	query := `
		INSERT INTO contract_documents (` + documentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(ctx, query,
		doc.ID,
		doc.LocationID,
		doc.FileURL,
		doc.UploadedAt,
		doc.DocumentType,
		doc.StartDate,
		doc.EndDate,
		doc.CooperationType,
		doc.PaymentTerms,
		doc.MonthlyCostAmount,
		doc.SecurityDepositAmount,
		doc.LastInvoiceDue,
		doc.LastInvoiceAmount,
		encodeInfo(doc.AdditionalInfo),
		doc.CreatedAt,
	)
	return err
}

// DocumentsByLocation returns a Location's full history, newest first.
func (r *Repository) DocumentsByLocation(ctx context.Context, locationID string) ([]models.ContractDocument, error) {
	var rows []models.ContractDocument
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+documentColumns+` FROM contract_documents WHERE location_id = ? ORDER BY uploaded_at DESC`,
		locationID)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if err := decodeInfo(&rows[i].AdditionalInfoRaw, &rows[i].AdditionalInfo); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func getLocation(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*models.Location, error) {
	var loc models.Location
	err := sqlx.GetContext(ctx, q, &loc, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := decodeInfo(&loc.AdditionalInfoRaw, &loc.AdditionalInfo); err != nil {
		return nil, err
	}
	return &loc, nil
}

func encodeInfo(m models.FlatMap) string {
	if len(m) == 0 {
		return ""
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(raw)
}

func decodeInfo(raw *string, dst *models.FlatMap) error {
	if *raw == "" {
		*dst = models.FlatMap{}
		return nil
	}
	return json.Unmarshal([]byte(*raw), dst)
}
