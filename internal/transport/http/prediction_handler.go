package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apierrors "sehatmap/internal/errors"
	"sehatmap/internal/services"
	api "sehatmap/pkg/contracts/api/v1"
	"sehatmap/pkg/contracts/domain"
)

// uploadMemory is the part of a multipart upload kept in memory before spilling to disk
const uploadMemory = 8 << 20

// PredictionHandler handles the prediction API
type PredictionHandler struct {
	service        PredictionServiceInterface
	logger         *slog.Logger
	errorHandler   *apierrors.ErrorHandler
	maxUploadBytes int64
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(service PredictionServiceInterface, maxUploadBytes int64, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *PredictionHandler {
	return &PredictionHandler{
		service:        service,
		logger:         logger.With(slog.String("component", "prediction_handler")),
		errorHandler:   errorHandler,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the prediction routes
func (h *PredictionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/geojson", h.GetGeoJSON)
	r.Get("/predictions", h.GetPredictions)
	r.Get("/predictions/meta", h.GetMeta)
	r.Get("/runs/last", h.GetLastRun)

	r.Post("/run", h.Run)
	r.Post("/dataset", h.UploadDataset)

	return r
}

// GetGeoJSON handles GET /api/ml/geojson
func (h *PredictionHandler) GetGeoJSON(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.ReferenceGeoJSON(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write GeoJSON response",
			slog.String("error", err.Error()))
	}
}

// GetPredictions handles GET /api/ml/predictions?tahun=&prioritas=
func (h *PredictionHandler) GetPredictions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	fc, err := h.service.Predictions(r.Context(), filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "predictions served",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Int("tahun", filter.Year),
		slog.String("prioritas", filter.Priority),
		slog.Int("features", len(fc.Features)))

	render.JSON(w, r, fc)
}

// parseFilter reads the optional tahun and prioritas query parameters
func parseFilter(r *http.Request) (domain.PredictionFilter, error) {
	q := r.URL.Query()
	var filter domain.PredictionFilter

	if v := strings.TrimSpace(q.Get("tahun")); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return filter, apierrors.ErrValidation("tahun", "tahun must be an integer year")
		}
		filter.Year = year
	}
	filter.Priority = strings.TrimSpace(q.Get("prioritas"))
	return filter, nil
}

// GetMeta handles GET /api/ml/predictions/meta
func (h *PredictionHandler) GetMeta(w http.ResponseWriter, r *http.Request) {
	meta, err := h.service.Meta(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, meta)
}

// GetLastRun handles GET /api/ml/runs/last
func (h *PredictionHandler) GetLastRun(w http.ResponseWriter, r *http.Request) {
	last := h.service.LastRun()
	if last == nil {
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("run"))
		return
	}
	render.JSON(w, r, last)
}

// Run handles POST /api/ml/run. The body is optional.
func (h *PredictionHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req api.RunRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "pipeline run requested",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Int("years", req.Years))

	resp, err := h.service.Run(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// UploadDataset handles POST /api/ml/dataset with a multipart "dataset" file
func (h *PredictionHandler) UploadDataset(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		if r.ContentLength > h.maxUploadBytes {
			h.errorHandler.HandleError(w, r, apierrors.ErrPayloadTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		h.handleError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("dataset")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("dataset", "a dataset file is required"))
		return
	}
	defer file.Close()

	h.logger.InfoContext(r.Context(), "dataset upload received",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size))

	resp, err := h.service.SaveDataset(r.Context(), header.Filename, file)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// handleError maps service errors onto API errors before rendering them
func (h *PredictionHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, services.ErrRunInProgress):
		err = apierrors.ErrRunInProgress
	case errors.Is(err, services.ErrInvalidFileType):
		err = apierrors.ErrValidation("dataset", "dataset must be a .csv, .xlsx or .xls file")
	case errors.Is(err, services.ErrStoreDisabled):
		err = apierrors.New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Prediction store is disabled")
	case errors.As(err, &maxBytes):
		err = apierrors.ErrPayloadTooLarge
	case errors.Is(err, http.ErrNotMultipart), errors.Is(err, http.ErrMissingBoundary):
		err = apierrors.InvalidRequestWithError(err)
	}
	h.errorHandler.HandleError(w, r, err)
}
