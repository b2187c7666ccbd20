package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"github.com/leaseledger/lease-ledger-api/internal/models"
	"github.com/leaseledger/lease-ledger-api/internal/services"
	"github.com/leaseledger/lease-ledger-api/internal/utils"
)

const (
	MaxFileSize = 20 << 20 // 20MB
)

type DocumentHandler struct {
	service services.IntakeService
	logger  *utils.Logger
}

func NewDocumentHandler(service services.IntakeService, logger *utils.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  logger,
	}
}

func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	// Reject oversized requests before reading the body
	if r.ContentLength > MaxFileSize {
		h.respondError(w, utils.NewBadRequestError("File size exceeds 20MB limit"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxFileSize)

	if err := r.ParseMultipartForm(MaxFileSize); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			h.respondError(w, utils.NewBadRequestError("File size exceeds 20MB limit"))
			return
		}
		h.respondError(w, utils.NewBadRequestError("Invalid form data"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, utils.NewBadRequestError("No file provided"))
		return
	}
	defer file.Close()

	if !isPDF(header.Filename, header.Header.Get("Content-Type")) {
		h.respondError(w, utils.NewBadRequestError("Only PDF files are allowed"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxFileSize+1))
	if err != nil {
		h.respondError(w, utils.NewInternalError("Failed to read file"))
		return
	}

	if len(data) > MaxFileSize {
		h.respondError(w, utils.NewBadRequestError("File size exceeds 20MB limit"))
		return
	}

	// Empty input is a user error; no background work is scheduled
	if len(data) == 0 {
		h.respondError(w, utils.NewBadRequestError("Uploaded file is empty"))
		return
	}

	req := &models.UploadRequest{
		File:     data,
		Filename: header.Filename,
	}

	resp, err := h.service.SubmitDocument(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, resp)
}

func (h *DocumentHandler) DocumentStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	if id == "" {
		h.respondError(w, utils.NewBadRequestError("Document ID is required"))
		return
	}

	resp, err := h.service.DocumentStatus(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

func (h *DocumentHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.service.ListLocations(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{"data": locations})
}

// isPDF accepts by extension first; browsers are unreliable about MIME types.
func isPDF(filename, contentType string) bool {
	if strings.ToLower(filepath.Ext(filename)) == ".pdf" {
		return true
	}
	return contentType == "application/pdf"
}

func (h *DocumentHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *DocumentHandler) respondError(w http.ResponseWriter, err error) {
	var status int
	var message string

	switch e := err.(type) {
	case *utils.AppError:
		status = e.StatusCode
		message = e.Message
	default:
		status = http.StatusInternalServerError
		message = "Internal server error"
	}

	h.logger.Error("Request error", "status", status, "error", message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
