package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/spotchat/internal/shared"
)

func newGeminiServer(t *testing.T, status int, reply string, prompts chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && len(body.Contents) > 0 && len(body.Contents[0].Parts) > 0 {
			select {
			case prompts <- body.Contents[0].Parts[0].Text:
			default:
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			fmt.Fprintf(w, `{"error":{"code":%d,"message":"boom","status":%q}}`, status, http.StatusText(status))
			return
		}
		resp := map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"role": "model", "parts": []map[string]any{{"text": reply}}},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiService(t *testing.T) {
	ctx := context.Background()

	t.Run("not configured", func(t *testing.T) {
		g, err := NewGeminiService(ctx, GeminiOpts{})
		require.NoError(t, err)
		assert.False(t, g.Configured())

		reply, err := g.Generate(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, NotConfiguredReply, reply)
	})

	t.Run("prefixes the assistant instructions", func(t *testing.T) {
		prompts := make(chan string, 1)
		srv := newGeminiServer(t, http.StatusOK, "  Hi there!  ", prompts)
		g, err := NewGeminiService(ctx, GeminiOpts{
			Config:     shared.GeminiConfig{APIKey: "key", BaseURL: srv.URL},
			HTTPClient: srv.Client(),
		})
		require.NoError(t, err)

		reply, err := g.Generate(ctx, "what should I listen to?")
		require.NoError(t, err)
		assert.Equal(t, "Hi there!", reply)

		prompt := <-prompts
		assert.True(t, strings.HasPrefix(prompt, "You are the assistant of a Spotify web app."))
		assert.True(t, strings.HasSuffix(prompt, "User message: what should I listen to?"))
	})

	t.Run("empty reply", func(t *testing.T) {
		srv := newGeminiServer(t, http.StatusOK, "", make(chan string, 1))
		g, err := NewGeminiService(ctx, GeminiOpts{
			Config:     shared.GeminiConfig{APIKey: "key", BaseURL: srv.URL},
			HTTPClient: srv.Client(),
		})
		require.NoError(t, err)

		reply, err := g.Generate(ctx, "hi")
		require.NoError(t, err)
		assert.Equal(t, EmptyReply, reply)
	})

	t.Run("upstream failure", func(t *testing.T) {
		srv := newGeminiServer(t, http.StatusInternalServerError, "", make(chan string, 1))
		g, err := NewGeminiService(ctx, GeminiOpts{
			Config:     shared.GeminiConfig{APIKey: "key", BaseURL: srv.URL},
			HTTPClient: srv.Client(),
		})
		require.NoError(t, err)

		_, err = g.Generate(ctx, "hi")
		up, ok := shared.AsUpstream(err)
		require.True(t, ok)
		assert.Equal(t, "gemini", up.Service)
		assert.Equal(t, http.StatusInternalServerError, up.Status)
		assert.Equal(t, "boom", up.Message)
		assert.True(t, up.Transient())
	})

	t.Run("status codes are kept", func(t *testing.T) {
		tests := []struct {
			status      int
			rateLimited bool
			reauth      bool
		}{
			{http.StatusTooManyRequests, true, false},
			{http.StatusUnauthorized, false, true},
			{http.StatusBadRequest, false, false},
		}
		for _, tt := range tests {
			t.Run(http.StatusText(tt.status), func(t *testing.T) {
				srv := newGeminiServer(t, tt.status, "", make(chan string, 1))
				g, err := NewGeminiService(ctx, GeminiOpts{
					Config:     shared.GeminiConfig{APIKey: "key", BaseURL: srv.URL},
					HTTPClient: srv.Client(),
				})
				require.NoError(t, err)

				_, err = g.Generate(ctx, "hi")
				up, ok := shared.AsUpstream(err)
				require.True(t, ok)
				assert.Equal(t, tt.status, up.Status)
				assert.Equal(t, tt.rateLimited, up.IsRateLimited())
				assert.Equal(t, tt.reauth, up.NeedsReauth())
			})
		}
	})
}
