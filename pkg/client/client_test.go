package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsBearerTokenAndDecodesEnvelope(t *testing.T) {
	var seenAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		require.Equal(t, "/tickets", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "t1", "status": "OPEN", "category_title": "Payments"},
			},
		})
	}))
	defer server.Close()

	api := New(server.URL, "token-123")
	tickets, err := api.ListTickets(context.Background(), ListOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Bearer token-123", seenAuth)
	require.Len(t, tickets, 1)
	assert.Equal(t, "t1", tickets[0].ID)
	assert.Equal(t, "OPEN", tickets[0].Status)
}

func TestClientListOptionsBuildQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OPEN,IN_PROGRESS", r.URL.Query().Get("status"))
		assert.Equal(t, "true", r.URL.Query().Get("assigned_to_me"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer server.Close()

	api := New(server.URL, "token")
	_, err := api.ListTickets(context.Background(), ListOptions{
		Statuses:     []string{"OPEN", "IN_PROGRESS"},
		AssignedToMe: true,
		Page:         2,
	})
	require.NoError(t, err)
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    "ALREADY_ASSIGNED",
				"message": "ticket already assigned to another employee",
			},
		})
	}))
	defer server.Close()

	api := New(server.URL, "token")
	_, err := api.ClaimTicket(context.Background(), "t1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "ALREADY_ASSIGNED", apiErr.Code)
}

func TestClientHandlesNonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	api := New(server.URL, "token")
	_, err := api.GetTicket(context.Background(), "t1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "UNKNOWN", apiErr.Code)
	assert.Equal(t, "upstream down", apiErr.Message)
}
