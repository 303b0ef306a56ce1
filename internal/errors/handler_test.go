package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sehatmap/internal/infrastructure"
)

func newTestHandler(includeStack bool) *ErrorHandler {
	return NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), includeStack)
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantDetail string
	}{
		{
			name:       "context deadline",
			err:        fmt.Errorf("run: %w", context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
		},
		{
			name:       "api error",
			err:        ErrRunInProgress,
			wantStatus: http.StatusConflict,
			wantType:   TypeRunInProgress,
			wantDetail: "A forecast run is already in progress",
		},
		{
			name:       "parameter validation",
			err:        ErrValidation("tahun", "must be a number"),
			wantStatus: http.StatusBadRequest,
			wantType:   TypeValidation,
		},
		{
			name:       "app not found",
			err:        NewNotFoundError("predictions file"),
			wantStatus: http.StatusNotFound,
			wantType:   TypeDataNotFound,
			wantDetail: "predictions file not found",
		},
		{
			name:       "app parsing",
			err:        fmt.Errorf("upload: %w", NewParsingError("failed to parse CSV", errors.New("bare quote"))),
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeDataInvalid,
			wantDetail: "failed to parse CSV",
		},
		{
			name:       "app config hides detail",
			err:        NewConfigError("secret path /etc/x", nil),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
			wantDetail: "An unexpected error occurred while processing your request",
		},
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(false)
			req := httptest.NewRequest(http.MethodGet, "/api/predictions", nil)
			req = req.WithContext(infrastructure.WithTraceID(req.Context(), "trace-1"))
			rec := httptest.NewRecorder()

			h.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeProblem(t, rec)
			assert.Equal(t, tt.wantType, body["type"])
			assert.EqualValues(t, tt.wantStatus, body["status"])
			assert.Equal(t, "/api/predictions", body["instance"])
			assert.Equal(t, "trace-1", body["trace_id"])
			assert.NotContains(t, body, "stack")
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, body["detail"])
			}
		})
	}
}

func TestErrorHandler_HandleNilError(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestHandler(false).HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Empty(t, rec.Body.String())
}

func TestErrorHandler_AppErrorContextBecomesExtensions(t *testing.T) {
	h := newTestHandler(false)
	req := httptest.NewRequest(http.MethodPost, "/api/dataset", nil)
	err := NewParsingError("bad header", nil).WithContext("file", "data.csv").WithContext("status", "ignored")

	problem := h.ErrorToProblem(err, req)
	assert.Equal(t, "data.csv", problem.Extensions["file"])
	assert.Equal(t, "PARSING", problem.Extensions["error_code"])

	data, mErr := json.Marshal(problem)
	require.NoError(t, mErr)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.EqualValues(t, http.StatusUnprocessableEntity, body["status"], "standard fields win over extensions")
}

func TestErrorHandler_Middleware(t *testing.T) {
	h := newTestHandler(true)
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map")
	})

	rec := httptest.NewRecorder()
	h.Middleware(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/run", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeProblem(t, rec)
	assert.Equal(t, TypeInternal, body["type"])
	assert.Equal(t, "nil map", body["panic"])
	assert.NotEmpty(t, body["stack"])
}

func TestErrorHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	h := newTestHandler(false)

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, TypeNotFound, decodeProblem(t, rec)["type"])

	rec = httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodDelete, "/api/run", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, decodeProblem(t, rec)["detail"], "DELETE")
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, NotFoundError("prediction"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "NOT_FOUND", resp.Error.ErrorCode)
	assert.Equal(t, "prediction not found", resp.Error.Message)
}

func TestProblemDetails_WithExtensionOnZeroValue(t *testing.T) {
	pd := &ProblemDetails{Type: TypeInternal, Title: "x", Status: 500}
	pd.WithExtension("k", "v")

	data, err := json.Marshal(pd)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"/errors/internal","title":"x","status":500,"k":"v"}`, string(data))
}
