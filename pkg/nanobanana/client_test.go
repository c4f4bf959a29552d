package nanobanana

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"histai-go/internal/config"
)

func TestExtractImage(t *testing.T) {
	cases := []map[string]interface{}{
		{"image_url": "https://a"},
		{"url": "https://a"},
		{"data": []interface{}{map[string]interface{}{"url": "https://a"}}},
		{"output": []interface{}{"https://a"}},
		{"modelOutputs": []interface{}{map[string]interface{}{"image_url": "https://a"}}},
	}
	for i, c := range cases {
		img, err := extractImage(c)
		if err != nil || img.URL != "https://a" {
			t.Errorf("case %d: img=%+v err=%v", i, img, err)
		}
	}

	png := []byte("\x89PNG\r\n\x1a\n0000")
	img, err := extractImage(map[string]interface{}{"image_base64": base64.StdEncoding.EncodeToString(png)})
	if err != nil || img.MIMEType != "image/png" || len(img.Data) != len(png) {
		t.Fatalf("base64: img=%+v err=%v", img, err)
	}
	if _, err := extractImage(map[string]interface{}{}); !errors.Is(err, ErrNoImage) {
		t.Fatalf("err = %v", err)
	}
}

func TestCustomURLThenBananaPolling(t *testing.T) {
	checks := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/custom":
			http.Error(w, "bad gateway", http.StatusBadGateway)
		case "/start/v1":
			if r.Header.Get("X-Banana-API-Key") != "0123456789" {
				t.Errorf("missing banana key header")
			}
			_, _ = w.Write([]byte(`{"id":"task-1"}`))
		case "/check/v1":
			checks++
			if checks < 2 {
				_, _ = w.Write([]byte(`{"finished":false}`))
				return
			}
			_, _ = w.Write([]byte(`{"finished":true,"modelOutputs":[{"image_url":"https://cdn/x.png"}]}`))
		}
	}))
	defer srv.Close()

	c := NewClient(config.NanoBananaConfig{
		APIKey:       "0123456789",
		CustomURL:    srv.URL + "/custom",
		BaseURL:      srv.URL,
		PollInterval: 5 * time.Millisecond,
		MaxAttempts:  5,
	})
	img, err := c.Generate(context.Background(), "p")
	if err != nil || img.URL != "https://cdn/x.png" {
		t.Fatalf("img=%+v err=%v", img, err)
	}
}

func TestInvalidKeyStopsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(config.NanoBananaConfig{APIKey: "0123456789", CustomURL: srv.URL, BaseURL: srv.URL})
	if _, err := c.Generate(context.Background(), "p"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("err = %v", err)
	}
	if NewClient(config.NanoBananaConfig{APIKey: "short"}).Configured() {
		t.Fatal("short key must not be configured")
	}
}
