package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSetsHeadersAndStatus(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "abc", body["id"])
}

func TestErrorUsesEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	NotFound(w, "rule not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "rule not found", body.Error)
}

func TestInternalErrorHidesDetail(t *testing.T) {
	w := httptest.NewRecorder()
	InternalError(w, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "internal server error", body.Error)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestDecodeRejectsBadJSON(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/v1/events", strings.NewReader("{not json"))

	var dst map[string]any
	ok := Decode(w, r, &dst)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecodeAcceptsValidJSON(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/v1/events", strings.NewReader(`{"trigger_event":"client_created"}`))

	var dst struct {
		TriggerEvent string `json:"trigger_event"`
	}
	require.True(t, Decode(w, r, &dst))
	assert.Equal(t, "client_created", dst.TriggerEvent)
}
