package models

import (
	"time"
)

// Status is the lifecycle state of a Location row. Placeholders start at
// processing; reconciliation moves them to completed, mapped or failed.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusMapped     Status = "mapped"
	StatusFailed     Status = "failed"
)

// Document types as reported by the field extraction adapter.
const (
	DocumentTypeAgreement = "agreement"
	DocumentTypeInvoice   = "invoice"
)

// DateFormat is the wire and storage format for all document dates.
// Lexicographic order on this format equals chronological order.
const DateFormat = "2006-01-02"

// Location is the reconciled record of one leased premises. location_name is
// the business key; at most one completed row may carry a given name.
type Location struct {
	ID                    string            `json:"id" db:"id"`
	LocationName          string            `json:"location_name" db:"location_name"`
	LocationAddress       string            `json:"location_address" db:"location_address"`
	StartDate             string            `json:"start_date" db:"start_date"`
	EndDate               string            `json:"end_date" db:"end_date"`
	CooperationType       string            `json:"cooperation_type" db:"cooperation_type"`
	PaymentTerms          string            `json:"payment_terms" db:"payment_terms"`
	MonthlyCostAmount     string            `json:"monthly_cost_amount" db:"monthly_cost_amount"`
	SecurityDepositAmount string            `json:"security_deposit_amount" db:"security_deposit_amount"`
	LastInvoiceDue        string            `json:"last_invoice_due" db:"last_invoice_due"`
	LastInvoiceAmount     string            `json:"last_invoice_amount" db:"last_invoice_amount"`
	AdditionalInfoRaw     string            `json:"-" db:"additional_info"`
	AdditionalInfo        FlatMap           `json:"additional_info" db:"-"`
	Status                Status            `json:"status" db:"status"`
	CreatedAt             time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at" db:"updated_at"`
}

// ContractDocument is one ingested document's extracted snapshot. Rows are
// append-only; UploadedAt is the document's own asserted date, not the
// ingestion time, and drives recency ordering during reconciliation.
type ContractDocument struct {
	ID                    string            `json:"id" db:"id"`
	LocationID            string            `json:"-" db:"location_id"`
	FileURL               string            `json:"file_url" db:"file_url"`
	UploadedAt            string            `json:"uploaded_at" db:"uploaded_at"`
	DocumentType          string            `json:"document_type" db:"document_type"`
	StartDate             string            `json:"start_date" db:"start_date"`
	EndDate               string            `json:"end_date" db:"end_date"`
	CooperationType       string            `json:"cooperation_type" db:"cooperation_type"`
	PaymentTerms          string            `json:"payment_terms" db:"payment_terms"`
	MonthlyCostAmount     string            `json:"monthly_cost_amount" db:"monthly_cost_amount"`
	SecurityDepositAmount string            `json:"security_deposit_amount" db:"security_deposit_amount"`
	LastInvoiceDue        string            `json:"last_invoice_due" db:"last_invoice_due"`
	LastInvoiceAmount     string            `json:"last_invoice_amount" db:"last_invoice_amount"`
	AdditionalInfoRaw     string            `json:"-" db:"additional_info"`
	AdditionalInfo        FlatMap           `json:"additional_info" db:"-"`
	CreatedAt             time.Time         `json:"-" db:"created_at"`
}

// FieldSet is the structured output of the field extraction adapter for a
// single document. Dates are YYYY-MM-DD strings; amounts stay strings since
// revenue-share terms may be percentages.
type FieldSet struct {
	LocationName          string            `json:"location_name"`
	LocationAddress       string            `json:"location_address"`
	StartDate             string            `json:"start_date"`
	EndDate               string            `json:"end_date"`
	CooperationType       string            `json:"cooperation_type"`
	PaymentTerms          string            `json:"payment_terms"`
	MonthlyCostAmount     string            `json:"monthly_cost_amount"`
	SecurityDepositAmount string            `json:"security_deposit_amount"`
	LastInvoiceDue        string            `json:"last_invoice_due"`
	LastInvoiceAmount     string            `json:"last_invoice_amount"`
	DocumentDate          string            `json:"document_date"`
	DocumentType          string            `json:"document_type"`
	AdditionalInfo        FlatMap           `json:"additional_info"`
}

type UploadRequest struct {
	File     []byte
	Filename string
}

type UploadResponse struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Message   string    `json:"message"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// LocationWithDocuments is the list-endpoint shape: a completed Location and
// its full document history, newest first.
type LocationWithDocuments struct {
	Location
	ContractDocuments []ContractDocument `json:"contract_documents"`
}
