package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "firstsync/pkg/logx"
)

func TestResolveToken(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("  file-token\n"), 0o600))

	cases := []struct {
		name    string
		cfg     Config
		want    string
		wantErr error
	}{
		{"file preferred", Config{TokenFile: tokenPath, Token: "inline"}, "file-token", nil},
		{"file only", Config{TokenFile: tokenPath}, "file-token", nil},
		{"inline fallback on missing file", Config{TokenFile: filepath.Join(dir, "absent"), Token: "inline"}, "inline", nil},
		{"inline only", Config{Token: "inline"}, "inline", nil},
		{"none", Config{}, "", ErrNoToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveToken(tc.cfg)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Token: "test-token", PageLimit: 2, BatchSize: 2}, logx.Nop())
	require.NoError(t, err)
	return c
}

func TestListAllPaginates(t *testing.T) {
	var afters []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.Equal(t, eventsPath, r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("limit"))

		after := r.URL.Query().Get("after")
		afters = append(afters, after)
		switch after {
		case "":
			io.WriteString(w, `{"results":[{"objectId":"1","externalEventId":"FRC2026A"},{"objectId":"2","externalEventId":"FRC2026B"}],"paging":{"next":{"after":"cursor-1"}}}`)
		case "cursor-1":
			io.WriteString(w, `{"results":[{"objectId":"3","externalEventId":"FRC2026C"}]}`)
		default:
			t.Errorf("unexpected after cursor %q", after)
		}
	}))

	events, err := c.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"", "cursor-1"}, afters)
	assert.Equal(t, "FRC2026C", events[2].ExternalEventID)
}

func TestListAllAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-HubSpot-Correlation-Id", "corr-123")
		http.Error(w, `{"message":"nope"}`, http.StatusForbidden)
	}))

	_, err := c.ListAll(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "corr-123", apiErr.CorrelationID)
	assert.Contains(t, apiErr.Body, "nope")
	assert.False(t, apiErr.IsRateLimited())
}

func TestBatchUpsertChunks(t *testing.T) {
	var chunks [][]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, upsertPath, r.URL.Path)
		var in batchInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		ids := make([]string, 0, len(in.Inputs))
		for _, i := range in.Inputs {
			ids = append(ids, i.ExternalEventID)
		}
		chunks = append(chunks, ids)
		w.WriteHeader(http.StatusOK)
	}))

	inputs := []MarketingEventInput{
		{ExternalEventID: "a"}, {ExternalEventID: "b"},
		{ExternalEventID: "c"}, {ExternalEventID: "d"},
		{ExternalEventID: "e"},
	}
	require.NoError(t, c.BatchUpsert(context.Background(), inputs))
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, chunks)
}

func TestBatchUpsertContinuesAfterFailedChunk(t *testing.T) {
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	inputs := []MarketingEventInput{
		{ExternalEventID: "a"}, {ExternalEventID: "b"},
		{ExternalEventID: "c"},
	}
	err := c.BatchUpsert(context.Background(), inputs)
	require.Error(t, err)
	assert.Equal(t, 2, calls, "remaining chunks still attempted")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestBatchUpsertEmpty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty input")
	}))
	require.NoError(t, c.BatchUpsert(context.Background(), nil))
}

func TestCustomPropertyValue(t *testing.T) {
	props := []CustomProperty{
		{Name: "event_season_year", Value: "2026"},
		{Name: "event_code", Value: "ALHU"},
		{Name: "dup", Value: "x"},
		{Name: "dup", Value: "y"},
	}

	v, ok := CustomPropertyValue(props, "event_season_year")
	assert.True(t, ok)
	assert.Equal(t, "2026", v)

	_, ok = CustomPropertyValue(props, "missing")
	assert.False(t, ok)

	// Ambiguous duplicates count as not found.
	_, ok = CustomPropertyValue(props, "dup")
	assert.False(t, ok)
}
