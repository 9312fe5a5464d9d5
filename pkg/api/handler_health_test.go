package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandlerWithMemoryStore(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 0, resp.ActiveGenerations)
	assert.Equal(t, 0, resp.ActiveConnections)
	require.Contains(t, resp.Checks, "database")
	assert.Equal(t, "healthy", resp.Checks["database"].Status)
	assert.Equal(t, "memory store", resp.Checks["database"].Message)
}
