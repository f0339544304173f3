package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragcorpus/internal/domain"
)

func testClient(url string) *Client {
	c := newClient(Config{BaseURL: url, MaxRetries: 2}, "sk-test")
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestEmbedBatch_OrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"first", "second"}, req.Input)

		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`))
	}))
	defer srv.Close()

	vecs, err := testClient(srv.URL).EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 2}}, vecs)
}

func TestEmbedBatch_RetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5]}]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	var waited time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error { waited = d; return nil }

	vecs, err := c.EmbedBatch(context.Background(), []string{"q"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5}}, vecs)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, time.Second, waited)
}

func TestEmbedBatch_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"bad model"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).EmbedBatch(context.Background(), []string{"q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedBatch_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).EmbedBatch(context.Background(), []string{"q"})
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("RAG_TEST_MISSING_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "RAG_TEST_MISSING_KEY"})
	assert.Error(t, err)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 400*time.Millisecond, retryDelay(1))
	assert.Equal(t, 5*time.Second, retryDelay(10))
}
