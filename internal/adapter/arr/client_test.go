package arr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
)

func TestApplyConfiguration(t *testing.T) {
	var gotPath, gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		fmt.Fprint(w, `{"count": 3}`)
	}))
	t.Cleanup(srv.Close)

	client := NewFactory(5 * time.Second).ForInstance(srv.URL+"/", "secret-key")

	n, err := client.ApplyConfiguration(context.Background(), domain.DefinitionKindFormat, json.RawMessage(`{"score": 100}`))
	if err != nil {
		t.Fatal(err)
	}

	if n != 3 {
		t.Errorf("expected 3 items synced, got %d", n)
	}
	if gotPath != "/api/v3/customformat/bulk" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "secret-key" {
		t.Errorf("expected api key header, got %q", gotKey)
	}
	if gotBody != `{"score": 100}` {
		t.Errorf("payload not sent verbatim: %q", gotBody)
	}
}

func TestApplyConfigurationQualityProfilePath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	client := NewFactory(time.Second).ForInstance(srv.URL, "k")

	n, err := client.ApplyConfiguration(context.Background(), domain.DefinitionKindQualityProfile, json.RawMessage(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected fallback count 1 for empty body, got %d", n)
	}
	if gotPath != "/api/v3/qualityprofile/bulk" {
		t.Errorf("unexpected path %q", gotPath)
	}
}

func TestApplyConfigurationServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := NewFactory(time.Second).ForInstance(srv.URL, "k")

	if _, err := client.ApplyConfiguration(context.Background(), domain.DefinitionKindFormat, json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestApplyConfigurationUnknownKind(t *testing.T) {
	client := NewFactory(time.Second).ForInstance("http://localhost:1", "k")

	if _, err := client.ApplyConfiguration(context.Background(), "mystery", json.RawMessage(`{}`)); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestApplyConfigurationTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect and cancel the request context.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	client := NewFactory(50 * time.Millisecond).ForInstance(srv.URL, "k")

	if _, err := client.ApplyConfiguration(context.Background(), domain.DefinitionKindFormat, json.RawMessage(`{}`)); err == nil {
		t.Error("expected timeout error")
	}
}
