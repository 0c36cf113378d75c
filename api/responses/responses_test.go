package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/saakshy/saakshy-backend/pkg/errors"
	"github.com/saakshy/saakshy-backend/pkg/logger"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func TestWriteSuccessStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, map[string]string{"recordId": "abc"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"data":{"recordId":"abc"}}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    pkgerrors.Code
		wantMessage string
		wantDetails any
	}{
		{
			name: "invalid transition keeps message and details",
			err: pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot confirm a SETTLED record").
				WithDetails(map[string]any{"command": "confirm", "status": "SETTLED"}),
			wantStatus:  http.StatusUnprocessableEntity,
			wantCode:    pkgerrors.CodeInvalidTransition,
			wantMessage: "cannot confirm a SETTLED record",
			wantDetails: map[string]any{"command": "confirm", "status": "SETTLED"},
		},
		{
			name: "integrity failure exposes the failing seq",
			err: pkgerrors.New(pkgerrors.CodeIntegrity, "record history failed verification").
				WithDetails(map[string]any{"failedAtSeq": 3}),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    pkgerrors.CodeIntegrity,
			wantMessage: "record history failed verification",
			wantDetails: map[string]any{"failedAtSeq": float64(3)},
		},
		{
			name:       "untyped error is internal and opaque",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   pkgerrors.CodeInternal,
		},
		{
			name:       "nil error still answers",
			err:        nil,
			wantStatus: http.StatusInternalServerError,
			wantCode:   pkgerrors.CodeInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(context.Background(), nil, rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, string(tt.wantCode), body.Code)
			assert.Equal(t, tt.wantDetails, body.Details)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, body.Message)
			} else {
				assert.NotContains(t, body.Message, "boom")
			}
		})
	}
}

func TestWriteErrorLogLevels(t *testing.T) {
	var out bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &out})

	logLine := func(err error) map[string]any {
		out.Reset()
		WriteError(context.Background(), logg, httptest.NewRecorder(), err)
		var line map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &line))
		return line
	}

	rejected := logLine(pkgerrors.New(pkgerrors.CodeValidation, "amount is required"))
	assert.Equal(t, "warn", rejected["level"])
	assert.Equal(t, "request.rejected", rejected["message"])
	assert.Equal(t, "VALIDATION_ERROR", rejected["error_code"])

	failed := logLine(errors.New("db exploded"))
	assert.Equal(t, "error", failed["level"])
	assert.Equal(t, "request.error", failed["message"])
}
