package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/leaseledger/lease-ledger-api/internal/handlers"
	"github.com/leaseledger/lease-ledger-api/internal/middleware"
	"github.com/leaseledger/lease-ledger-api/internal/services"
	"github.com/leaseledger/lease-ledger-api/internal/utils"
)

func NewRouter(intake services.IntakeService, logger *utils.Logger) http.Handler {
	r := mux.NewRouter()

	// Middlewares
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Recovery(logger))

	docHandler := handlers.NewDocumentHandler(intake, logger)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	// Document intake and polling
	api.HandleFunc("/documents/upload", docHandler.UploadDocument).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/status", docHandler.DocumentStatus).Methods(http.MethodGet)

	// Reconciled ledger
	api.HandleFunc("/locations", docHandler.ListLocations).Methods(http.MethodGet)

	return r
}
