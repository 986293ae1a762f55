// Package handler exposes the ingestion pipeline over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/caseledger/bankfeed/internal/domain/ingestion"
	"github.com/caseledger/bankfeed/internal/domain/ingestion/parser"
	"github.com/caseledger/bankfeed/pkg/storage"
)

// maxUploadBytes caps statement uploads at 10 MB.
const maxUploadBytes = 10 << 20

// Handler routes statement import requests to the ingestion service
type Handler struct {
	service *ingestion.Service
	spool   *storage.Spool
	logger  *slog.Logger
}

// NewHandler creates an ingestion HTTP handler
func NewHandler(service *ingestion.Service, spool *storage.Spool, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		spool:   spool,
		logger:  logger,
	}
}

// Register mounts the ingestion routes on the mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/accounts/{account_id}/imports", h.importStatement)
	mux.HandleFunc("PATCH /v1/transactions/{id}/category", h.overrideCategory)
}

func (h *Handler) importStatement(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(r.PathValue("account_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	// Spool to disk first so the pipeline owns the file's lifecycle.
	path, err := h.spool.Save(header.Filename, file)
	if err != nil {
		h.logger.Error("failed to spool upload", "filename", header.Filename, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	opts := ingestion.Options{
		Format: parser.Format(r.FormValue("format")),
	}

	result, err := h.service.Ingest(r.Context(), path, accountID, opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

type overrideRequest struct {
	CategoryID uuid.UUID `json:"category_id"`
	Notes      *string   `json:"notes"`
}

func (h *Handler) overrideCategory(w http.ResponseWriter, r *http.Request) {
	txID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CategoryID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "category_id is required")
		return
	}

	tx, err := h.service.OverrideCategory(r.Context(), txID, req.CategoryID, req.Notes)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tx)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingestion.ErrAccountNotFound),
		errors.Is(err, ingestion.ErrCategoryNotFound),
		errors.Is(err, ingestion.ErrTransactionNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ingestion.ErrEmptyFile),
		errors.Is(err, ingestion.ErrTooManyParseErrors):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("ingestion request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
