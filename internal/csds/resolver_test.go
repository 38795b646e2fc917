// ABOUTME: Tests for CSDS service directory resolution
// ABOUTME: Covers successful resolution, non-2xx responses, and malformed bodies

package csds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolve_Success(t *testing.T) {
	var gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"baseURIs":[
			{"service":"sentinel","baseURI":"sentinel.example.net"},
			{"service":"idp","baseURI":"idp.example.net"},
			{"service":"asyncMessagingEnt","baseURI":"ums.example.net"}
		]}`))
	}))
	defer server.Close()

	resolver := NewResolver(server.Client(), nil)
	domains, err := resolver.Resolve(context.Background(), "12345", server.URL)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if gotPath != "/api/account/12345/service/baseURI.json" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotQuery != "version=1.0" {
		t.Errorf("request query = %q", gotQuery)
	}

	if uri, ok := domains.Lookup(ServiceSentinel); !ok || uri != "sentinel.example.net" {
		t.Errorf("Lookup(sentinel) = %q, %v", uri, ok)
	}
	if _, ok := domains.Lookup("unknownService"); ok {
		t.Error("Lookup(unknownService) should not be found")
	}
}

func TestResolve_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	resolver := NewResolver(server.Client(), nil)
	_, err := resolver.Resolve(context.Background(), "12345", server.URL)

	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("Resolve() error = %v, want ResolutionError", err)
	}
	if resErr.Status != http.StatusUnauthorized {
		t.Errorf("ResolutionError.Status = %d, want 401", resErr.Status)
	}
}

func TestResolve_MissingList(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty object", body: `{}`},
		{name: "empty list", body: `{"baseURIs":[]}`},
		{name: "not json", body: `<html>error</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			resolver := NewResolver(server.Client(), nil)
			_, err := resolver.Resolve(context.Background(), "12345", server.URL)

			var resErr *ResolutionError
			if !errors.As(err, &resErr) {
				t.Fatalf("Resolve() error = %v, want ResolutionError", err)
			}
		})
	}
}

func TestBaseURL(t *testing.T) {
	if got := BaseURL("api.liveperson.net"); got != "https://api.liveperson.net" {
		t.Errorf("BaseURL() = %q", got)
	}
	if got := BaseURL("http://127.0.0.1:9999"); got != "http://127.0.0.1:9999" {
		t.Errorf("BaseURL() = %q", got)
	}
}
