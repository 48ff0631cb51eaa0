package revocation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLookupReturnsRevokedHashes(t *testing.T) {
	revokedAt := time.Now().UTC().Truncate(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, lookupPath, r.URL.Path)

		var req lookupRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"aaa", "bbb"}, req.Hashes)

		json.NewEncoder(w).Encode(lookupResponse{Revoked: []RevokedToken{
			{Hash: "bbb", RevokedAt: revokedAt},
		}})
	}))
	defer server.Close()

	client := NewClient(server.URL, zap.NewNop())
	revoked, err := client.Lookup(context.Background(), []string{"aaa", "bbb"})
	require.NoError(t, err)
	require.Len(t, revoked, 1)
	assert.Equal(t, "bbb", revoked[0].Hash)
	assert.True(t, revokedAt.Equal(revoked[0].RevokedAt))
}

func TestLookupEmptyInputSkipsNetwork(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", zap.NewNop())
	revoked, err := client.Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, revoked)
}

func TestLookupNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, zap.NewNop())
	_, err := client.Lookup(context.Background(), []string{"aaa"})
	require.Error(t, err)
}

func TestRevokedNamesFirstOffender(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(lookupResponse{Revoked: []RevokedToken{
			{Hash: "ccc", RevokedAt: time.Now().UTC()},
		}})
	}))
	defer server.Close()

	client := NewClient(server.URL, zap.NewNop())
	revoked, reason, err := client.Revoked(context.Background(), []string{"ccc"})
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Contains(t, reason, "ccc")
}

func TestRevokedCleanChain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(lookupResponse{})
	}))
	defer server.Close()

	client := NewClient(server.URL, zap.NewNop())
	revoked, reason, err := client.Revoked(context.Background(), []string{"ddd"})
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.Empty(t, reason)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", zap.NewNop())

	for i := 0; i < 10; i++ {
		_, _ = client.Lookup(context.Background(), []string{"aaa"})
	}

	_, err := client.Lookup(context.Background(), []string{"aaa"})
	require.Error(t, err)
}
