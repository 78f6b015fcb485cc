package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kardexlab/kardex/internal/agent"
	"github.com/kardexlab/kardex/internal/casebook"
	"github.com/kardexlab/kardex/internal/ledger"
	"github.com/kardexlab/kardex/internal/lifecycle"
	"github.com/kardexlab/kardex/internal/testutil"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	writeJSON(w, testutil.DiscardLogger(), http.StatusOK, map[string]string{"message": "hola"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	var result map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "hola", result["message"])
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"ledger not found", fmt.Errorf("wrap: %w", ledger.ErrNotFound), http.StatusNotFound},
		{"lifecycle not found", lifecycle.ErrNotFound, http.StatusNotFound},
		{"allocation conflict", ledger.ErrConflict, http.StatusConflict},
		{"already resolved", lifecycle.ErrAlreadyResolved, http.StatusConflict},
		{"agent validation", agent.ErrValidation, http.StatusBadRequest},
		{"store validation", casebook.ErrValidation, http.StatusBadRequest},
		{"unknown error", errors.New("database exploded"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, testutil.DiscardLogger(), tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestWriteErrorHidesInternals(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, testutil.DiscardLogger(), errors.New("password=hunter2 connection refused"))

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotContains(t, resp.Error, "hunter2")
}

func TestDecodeJSONUnknownField(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"unknown":1}`))
	var dst problemRequest
	assert.Error(t, decodeJSON(r, &dst))
}

func TestIntParam(t *testing.T) {
	assert.Equal(t, 0, intParam(""))
	assert.Equal(t, 0, intParam("abc"))
	assert.Equal(t, 0, intParam("-3"))
	assert.Equal(t, 7, intParam("7"))
}
