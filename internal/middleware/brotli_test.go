package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

func newBrotliEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/big", func(c *gin.Context) { c.String(http.StatusOK, strings.Repeat("violation ", 500)) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestBrotli(t *testing.T) {
	r := newBrotliEngine()

	tests := []struct {
		name       string
		path       string
		accept     string
		compressed bool
	}{
		{"large body compressed", "/big", "gzip, br;q=1.0", true},
		{"small body passes through", "/small", "br", false},
		{"no br support", "/big", "gzip", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Accept-Encoding", tt.accept)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get("Content-Encoding") == "br"
			if got != tt.compressed {
				t.Fatalf("expected compressed=%v, got %v", tt.compressed, got)
			}

			body := w.Body.String()
			if got {
				raw, err := io.ReadAll(brotli.NewReader(w.Body))
				if err != nil {
					t.Fatalf("decompress: %v", err)
				}
				body = string(raw)
			}
			if tt.path == "/big" && body != strings.Repeat("violation ", 500) {
				t.Error("body mismatch")
			}
			if tt.path == "/small" && body != "ok" {
				t.Errorf("expected ok, got %q", body)
			}
		})
	}
}

func TestBrotliSkipsStreams(t *testing.T) {
	r := newBrotliEngine()
	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "br")
	req.Header.Set("Accept", "text/event-stream")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "" {
		t.Error("SSE responses must not be compressed")
	}
}
