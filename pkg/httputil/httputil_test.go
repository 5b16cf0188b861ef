package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
	"github.com/utafrali/EcommerceGo/pkg/logger"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *ErrorResponse {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, Response{Data: map[string]int{"count": 3}})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"count":3}}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"app error", apperrors.NotFound("cart item", "P1"), http.StatusNotFound, "NOT_FOUND"},
		{"out of stock", apperrors.OutOfStock("P1", "M", "Red"), http.StatusConflict, "OUT_OF_STOCK"},
		{"wrapped conflict", fmt.Errorf("save: %w", apperrors.ErrConflict), http.StatusConflict, "CONFLICT"},
		{"wrapped invalid", fmt.Errorf("parse: %w", apperrors.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown", errors.New("redis down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			WriteError(rec, req, tt.err, logger.Discard())

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "req-42")
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	WriteError(rec, req, apperrors.InvalidInput("bad"), logger.Discard())
	assert.Equal(t, "req-42", decodeError(t, rec).RequestID)
}

func TestWriteError_InternalDoesNotLeakDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("dial tcp 10.0.0.3:6379"), logger.Discard())
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}

type payload struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

func TestDecodeJSON(t *testing.T) {
	var p payload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"tee","quantity":2}`))
	require.NoError(t, DecodeJSON(req, &p))
	assert.Equal(t, payload{Name: "tee", Quantity: 2}, p)
}

func TestDecodeJSON_Errors(t *testing.T) {
	var p payload

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	assert.ErrorIs(t, DecodeJSON(req, &p), apperrors.ErrInvalidInput)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","quantity":1,"extra":true}`))
	assert.ErrorIs(t, DecodeJSON(req, &p), apperrors.ErrInvalidInput)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"","quantity":0}`))
	err := DecodeJSON(req, &p)
	require.Error(t, err)

	rec := httptest.NewRecorder()
	WriteError(rec, req, err, logger.Discard())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	assert.Contains(t, resp.Fields, "name")
	assert.Contains(t, resp.Fields, "quantity")
}
