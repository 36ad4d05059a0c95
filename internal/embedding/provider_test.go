package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPClient_EmbedSendsTaskAndParsesResponse(t *testing.T) {
	t.Parallel()

	var gotReq request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		resp := response{Data: []responseRow{{Embedding: []float32{0.1, 0.2}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL, Model: "text-embed", APIKey: "secret"})
	out, err := c.Embed(context.Background(), []string{"hello"}, TaskRetrievalQuery)
	require.NoError(t, err)
	require.Equal(t, "RETRIEVAL_QUERY", gotReq.Task)
	require.Equal(t, [][]float32{{0.1, 0.2}}, out)
}

func TestHTTPClient_EmbedMismatchedCountErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(response{Data: nil})
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL})
	_, err := c.Embed(context.Background(), []string{"a", "b"}, TaskRetrievalDocument)
	require.Error(t, err)
}

func TestFake_EmbedIsDeterministic(t *testing.T) {
	t.Parallel()

	f := NewFake(4)
	a, err := f.Embed(context.Background(), []string{"hello"}, TaskRetrievalDocument)
	require.NoError(t, err)
	b, err := f.Embed(context.Background(), []string{"hello"}, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, 2, f.Calls)
}
