package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAbsolutiseResolvesRelativeSegment(t *testing.T) {
	base, _ := url.Parse("https://cdn.example.com/video/master.m3u8")
	got := absolutise(base, "seg-001.ts?token=abc")
	want := "https://cdn.example.com/video/seg-001.ts?token=abc"
	if got != want {
		t.Fatalf("absolutise = %q, want %q", got, want)
	}
}

func TestContentTypeForForcesMP4UnlessHLS(t *testing.T) {
	if got := contentTypeFor("https://cdn.example.com/v.mp4", "binary/octet-stream"); got != "video/mp4" {
		t.Fatalf("expected video/mp4, got %q", got)
	}
	if got := contentTypeFor("https://cdn.example.com/pl.m3u8", ""); got != "application/vnd.apple.mpegurl" {
		t.Fatalf("expected hls content type for .m3u8 url, got %q", got)
	}
	if got := contentTypeFor("https://cdn.example.com/x", "application/x-mpegurl"); got != "application/vnd.apple.mpegurl" {
		t.Fatalf("expected hls content type from upstream header, got %q", got)
	}
}

func TestHandleRejectsInvalidURL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(Options{ProxyBaseURL: "https://proxy.example.com"}).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/proxy?url=not-a-url", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid url, got %d", w.Code)
	}
}

func TestHandleForwardsRangeAndForcesContentType(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=0-1" {
			t.Errorf("expected range header forwarded, got %q", r.Header.Get("Range"))
		}
		w.Header().Set("Content-Type", "binary/octet-stream")
		w.Header().Set("Content-Range", "bytes 0-1/2")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = io.WriteString(w, "ok")
	}))
	defer upstream.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(Options{ProxyBaseURL: "https://proxy.example.com"}).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/proxy?url="+url.QueryEscape(upstream.URL+"/v.mp4"), nil)
	req.Header.Set("Range", "bytes=0-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Fatalf("expected forced video/mp4, got %q", ct)
	}
	if w.Header().Get("Content-Disposition") != "inline" {
		t.Fatalf("expected inline content-disposition, got %q", w.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Fatalf("expected upstream body forwarded, got %q", w.Body.String())
	}
}
