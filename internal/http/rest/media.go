package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/italolelis/media_downloader/internal/logctx"
	"github.com/italolelis/media_downloader/internal/media"
	"github.com/italolelis/media_downloader/internal/operation"
	"github.com/italolelis/media_downloader/internal/storage"
)

const (
	downloadAccepted   = "Download initiated. Check the console for progress."
	conversionAccepted = "Conversion initiated. Check the console for progress."

	defaultListLimit = 50
	maxListLimit     = 500
	maxBodySize      = 1 << 20
)

// Operator runs media operations. It is implemented by operation.Coordinator.
type Operator interface {
	Download(ctx context.Context, req media.DownloadRequest) media.Outcome
	Convert(ctx context.Context, req media.ConvertRequest) media.Outcome
	Cancel(id string) error
}

// OperationResponse is returned once an operation finished.
type OperationResponse struct {
	Message     string        `json:"message"`
	Result      string        `json:"result"`
	OperationID string        `json:"operationId,omitempty"`
	Outcome     media.Outcome `json:"outcome"`
}

type MediaHandler struct {
	operator Operator
	history  storage.OperationReadRepository
}

// NewMediaHandler creates a handler for the media endpoints. history may be nil,
// in which case the operation listing endpoints report 404.
func NewMediaHandler(operator Operator, history storage.OperationReadRepository) *MediaHandler {
	return &MediaHandler{
		operator: operator,
		history:  history,
	}
}

func (h *MediaHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/api/media", func(r chi.Router) {
		r.Post("/download", h.HandleDownload)
		r.Post("/convert", h.HandleConvert)

		r.Get("/operations", h.HandleListOperations)
		r.Get("/operations/{id}", h.HandleGetOperation)
		r.Delete("/operations/{id}", h.HandleCancelOperation)
	})

	return r
}

// HandleDownload runs a download and answers once it finished.
func (h *MediaHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req media.DownloadRequest
	if !decode(w, r, &req) {
		return
	}

	if err := req.Validate(); err != nil {
		writeValidationError(w, err)

		return
	}

	logger.Info("download requested", "url", req.URL, "format", req.Format, "resolution", req.Resolution)

	extendWriteDeadline(w, r)

	outcome := h.operator.Download(context.WithoutCancel(r.Context()), req)

	writeJSON(w, r, http.StatusOK, OperationResponse{
		Message:     downloadAccepted,
		Result:      outcome.Message,
		OperationID: outcome.OperationID,
		Outcome:     outcome,
	})
}

// HandleConvert runs a conversion and answers once it finished.
func (h *MediaHandler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var req media.ConvertRequest
	if !decode(w, r, &req) {
		return
	}

	if err := req.Validate(); err != nil {
		writeValidationError(w, err)

		return
	}

	logger.Info("conversion requested", "input", req.InputFilePath, "format", req.OutputFormat)

	extendWriteDeadline(w, r)

	outcome := h.operator.Convert(context.WithoutCancel(r.Context()), req)

	writeJSON(w, r, http.StatusOK, OperationResponse{
		Message:     conversionAccepted,
		Result:      outcome.Message,
		OperationID: outcome.OperationID,
		Outcome:     outcome,
	})
}

// HandleListOperations returns the most recent operations, newest first.
func (h *MediaHandler) HandleListOperations(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.NotFound(w, r)

		return
	}

	limit := defaultListLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive number", http.StatusBadRequest)

			return
		}

		limit = min(n, maxListLimit)
	}

	records, err := h.history.ListOperations(r.Context(), limit)
	if err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to list operations", "err", err)
		http.Error(w, "failed to list operations", http.StatusInternalServerError)

		return
	}

	if records == nil {
		records = []storage.OperationRecord{}
	}

	writeJSON(w, r, http.StatusOK, records)
}

// HandleGetOperation returns a single operation.
func (h *MediaHandler) HandleGetOperation(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.NotFound(w, r)

		return
	}

	rec, err := h.history.GetOperation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "operation not found", http.StatusNotFound)

			return
		}

		logctx.LoggerFromContext(r.Context()).Error("failed to get operation", "err", err)
		http.Error(w, "failed to get operation", http.StatusInternalServerError)

		return
	}

	writeJSON(w, r, http.StatusOK, rec)
}

// HandleCancelOperation stops a running operation.
func (h *MediaHandler) HandleCancelOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.operator.Cancel(id); err != nil {
		if errors.Is(err, operation.ErrUnknownOperation) {
			http.Error(w, "operation is not running", http.StatusNotFound)

			return
		}

		logctx.LoggerFromContext(r.Context()).Error("failed to cancel operation", "id", id, "err", err)
		http.Error(w, "failed to cancel operation", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Debug("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return false
	}

	return true
}

func writeValidationError(w http.ResponseWriter, err error) {
	var vErr *media.ValidationError
	if errors.As(err, &vErr) {
		http.Error(w, vErr.Message, http.StatusBadRequest)

		return
	}

	http.Error(w, err.Error(), http.StatusBadRequest)
}

// extendWriteDeadline lifts the server write timeout: the response is only
// written once the operation finished, which may take far longer.
func extendWriteDeadline(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logctx.LoggerFromContext(r.Context()).Debug("failed to clear write deadline", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}
