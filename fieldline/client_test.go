package fieldline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	creds := Credentials{
		ClientId:     "cid",
		ClientSecret: "secret",
		TenantId:     "tenant-1",
		AppKey:       "app-key",
		BaseURL:      srv.URL,
		AuthURL:      srv.URL + "/connect/token",
	}
	return NewClient(creds, testLogger()), srv
}

func writeToken(w http.ResponseWriter, token string, expiresIn int) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"access_token":%q,"expires_in":%d}`, token, expiresIn)
}

func TestGetAccessToken_CachesUntilExpiry(t *testing.T) {
	tokenFetches := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		tokenFetches++
		if got := r.FormValue("grant_type"); got != "client_credentials" {
			t.Fatalf("grant_type expected client_credentials, got %q", got)
		}
		writeToken(w, fmt.Sprintf("token-%d", tokenFetches), 3600)
	})
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Fatalf("Authorization expected Bearer token-1, got %q", got)
		}
		if got := r.Header.Get("FL-App-Key"); got != "app-key" {
			t.Fatalf("FL-App-Key expected app-key, got %q", got)
		}
		w.Write([]byte(`{}`))
	})

	c, _ := newTestClient(t, mux)
	for i := 0; i < 3; i++ {
		if err := c.Request(context.Background(), http.MethodGet, "/ping", nil, nil, nil); err != nil {
			t.Fatalf("request %d error: %v", i, err)
		}
	}
	if tokenFetches != 1 {
		t.Fatalf("expected 1 token fetch, got %d", tokenFetches)
	}
}

func TestGetAccessToken_RefreshesInsideSkewWindow(t *testing.T) {
	tokenFetches := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		tokenFetches++
		// 30s lifetime is inside the 60s skew, so the token is never reused.
		writeToken(w, fmt.Sprintf("token-%d", tokenFetches), 30)
	})
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	c, _ := newTestClient(t, mux)
	for i := 0; i < 2; i++ {
		if err := c.Request(context.Background(), http.MethodGet, "/ping", nil, nil, nil); err != nil {
			t.Fatalf("request %d error: %v", i, err)
		}
	}
	if tokenFetches != 2 {
		t.Fatalf("expected a refresh per request inside the skew window, got %d fetches", tokenFetches)
	}
}

func TestRequest_APIErrorTruncatesBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "token-1", 3600)
	})
	mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", 2000)))
	})

	c, _ := newTestClient(t, mux)
	err := c.Request(context.Background(), http.MethodGet, "/boom", nil, nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", apiErr.StatusCode)
	}
	if len(apiErr.Body) != 500 {
		t.Fatalf("expected body truncated to 500 bytes, got %d", len(apiErr.Body))
	}
}

func TestRequestAllPages_WalksUntilHasMoreFalse(t *testing.T) {
	const pages = 3
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "token-1", 3600)
	})
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if r.URL.Query().Get("pageSize") != "200" {
			t.Fatalf("expected default pageSize 200, got %q", r.URL.Query().Get("pageSize"))
		}
		envelope := map[string]interface{}{
			"data":    []map[string]interface{}{{"page": page}},
			"hasMore": page != fmt.Sprint(pages),
		}
		json.NewEncoder(w).Encode(envelope)
	})

	c, _ := newTestClient(t, mux)
	raw, err := c.RequestAllPages(context.Background(), "/list", nil)
	if err != nil {
		t.Fatalf("RequestAllPages error: %v", err)
	}
	if len(raw) != pages {
		t.Fatalf("expected %d items, got %d", pages, len(raw))
	}
}

func TestRequestAllPages_StopsAtSafetyLimit(t *testing.T) {
	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "token-1", 3600)
	})
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		requests++
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data":    []map[string]interface{}{{"n": requests}},
			"hasMore": true,
		})
	})

	c, _ := newTestClient(t, mux)
	raw, err := c.RequestAllPages(context.Background(), "/list", nil)
	if err != nil {
		t.Fatalf("RequestAllPages error: %v", err)
	}
	if requests != maxPages {
		t.Fatalf("expected exactly %d page requests, got %d", maxPages, requests)
	}
	if len(raw) != maxPages {
		t.Fatalf("expected %d items, got %d", maxPages, len(raw))
	}
}

func TestInvoicesByIDs_ChunksFilter(t *testing.T) {
	var chunkSizes []int
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "token-1", 3600)
	})
	mux.HandleFunc("/accounting/v2/tenant/tenant-1/invoices", func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		chunkSizes = append(chunkSizes, len(ids))
		data := make([]map[string]interface{}, 0, len(ids))
		for _, id := range ids {
			data = append(data, map[string]interface{}{"id": json.Number(id)})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": data, "hasMore": false})
	})

	c, _ := newTestClient(t, mux)
	ids := make([]int, 120)
	for i := range ids {
		ids[i] = i + 1
	}
	invoices, err := c.InvoicesByIDs(context.Background(), ids)
	if err != nil {
		t.Fatalf("InvoicesByIDs error: %v", err)
	}
	if len(invoices) != 120 {
		t.Fatalf("expected 120 invoices, got %d", len(invoices))
	}
	expected := []int{50, 50, 20}
	if len(chunkSizes) != len(expected) {
		t.Fatalf("expected %d chunked requests, got %d", len(expected), len(chunkSizes))
	}
	for i, want := range expected {
		if chunkSizes[i] != want {
			t.Fatalf("chunk %d expected %d ids, got %d", i, want, chunkSizes[i])
		}
	}
}
