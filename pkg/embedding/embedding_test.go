package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e := NewLocalEmbedder(64)

	a, err := e.Embed(context.Background(), "An account failed to log on")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "An account failed to log on")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestLocalEmbedder_Normalised(t *testing.T) {
	e := NewLocalEmbedder(128)
	v, err := e.Embed(context.Background(), "process created powershell.exe")
	require.NoError(t, err)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestLocalEmbedder_SimilarTextsCloser(t *testing.T) {
	e := NewLocalEmbedder(256)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "An account failed to log on user admin host DC-01")
	b, _ := e.Embed(ctx, "An account failed to log on user admin host DC-02")
	c, _ := e.Embed(ctx, "Windows update service installed a driver package")

	cos := func(x, y []float32) float64 {
		var dot float64
		for i := range x {
			dot += float64(x[i]) * float64(y[i])
		}
		return dot
	}

	assert.Greater(t, cos(a, b), cos(a, c))
}

func TestHTTPEmbedder_Success(t *testing.T) {
	vec := make([]float32, 8)
	vec[0] = 1

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.NotEmpty(t, req.Prompt)
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: vec})
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "nomic-embed-text", 8, time.Second)
	got, err := e.Embed(context.Background(), "some text")
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestHTTPEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "m", 8, time.Second)
	_, err := e.Embed(context.Background(), "text")
	require.ErrorIs(t, err, ErrEmbedderUnavailable)
}

func TestHTTPEmbedder_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{1, 2}})
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL, "m", 8, time.Second)
	_, err := e.Embed(context.Background(), "text")
	require.ErrorIs(t, err, ErrEmbedderUnavailable)
}

func TestHTTPEmbedder_Unreachable(t *testing.T) {
	e := NewHTTPEmbedder("http://127.0.0.1:1/api/embeddings", "m", 8, 200*time.Millisecond)
	_, err := e.Embed(context.Background(), "text")
	require.ErrorIs(t, err, ErrEmbedderUnavailable)
}
