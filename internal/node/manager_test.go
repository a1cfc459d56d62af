package node

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/CrisRain/Lumina/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := config.Open(t.TempDir())
	if err != nil {
		t.Fatalf("config.Open: %v", err)
	}
	return NewManager(store)
}

func TestNormalizeBaseURL(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://example.com:8000", "http://example.com:8000", false},
		{"https://example.com/", "https://example.com", false},
		{"example.com:8000", "http://example.com:8000", false},
		{"https://example.com/api/v1?x=1", "https://example.com", false},
		{"  http://example.com  ", "http://example.com", false},
		{"", "", true},
		{"ftp://example.com", "", true},
		{"http://", "", true},
	}
	for _, tc := range cases {
		got, err := normalizeBaseURL(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("normalizeBaseURL(%q) accepted, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("normalizeBaseURL(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("normalizeBaseURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAddListGet(t *testing.T) {
	m := newTestManager(t)

	created, err := m.Add("berlin", "http://10.0.0.2:8000", "tok123", true)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Add returned an empty ID")
	}
	if !created.TokenConfigured {
		t.Error("TokenConfigured = false with a token set")
	}

	list := m.List()
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("List = %+v", list)
	}

	full, ok := m.Get(created.ID)
	if !ok {
		t.Fatal("Get did not find the node")
	}
	if full.Token != "tok123" {
		t.Errorf("stored token = %q", full.Token)
	}
}

func TestAddRejectsDuplicateBaseURL(t *testing.T) {
	m := newTestManager(t)
	m.Add("a", "http://10.0.0.2:8000", "", true)

	// Same URL after normalization, different spelling.
	if _, err := m.Add("b", "10.0.0.2:8000", "", true); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Add duplicate = %v, want ErrDuplicate", err)
	}
}

func TestAddValidation(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Add("   ", "http://10.0.0.2", "", true); err == nil {
		t.Error("Add accepted a blank name")
	}
	if _, err := m.Add("x", "", "", true); err == nil {
		t.Error("Add accepted an empty base URL")
	}
}

func TestUpdatePartialFields(t *testing.T) {
	m := newTestManager(t)
	created, _ := m.Add("berlin", "http://10.0.0.2:8000", "tok", true)

	newName := "frankfurt"
	disabled := false
	updated, err := m.Update(created.ID, &newName, nil, nil, &disabled)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "frankfurt" {
		t.Errorf("Name = %q", updated.Name)
	}
	if updated.Enabled {
		t.Error("Enabled not updated")
	}
	if updated.BaseURL != "http://10.0.0.2:8000" {
		t.Errorf("BaseURL changed unexpectedly: %q", updated.BaseURL)
	}
	if !updated.TokenConfigured {
		t.Error("token lost by a partial update")
	}
}

func TestUpdateUnknownID(t *testing.T) {
	m := newTestManager(t)
	name := "x"
	if _, err := m.Update("nope", &name, nil, nil, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update unknown = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)
	created, _ := m.Add("berlin", "http://10.0.0.2:8000", "", true)

	if !m.Delete(created.ID) {
		t.Fatal("Delete returned false for an existing node")
	}
	if m.Delete(created.ID) {
		t.Error("Delete returned true for an already-deleted node")
	}
	if len(m.List()) != 0 {
		t.Error("node survived deletion")
	}
}

func TestRegistryPersistsAcrossManagers(t *testing.T) {
	store, err := config.Open(t.TempDir())
	if err != nil {
		t.Fatalf("config.Open: %v", err)
	}

	first := NewManager(store)
	created, _ := first.Add("berlin", "http://10.0.0.2:8000", "tok", true)

	second := NewManager(store)
	if _, ok := second.Get(created.ID); !ok {
		t.Error("node registry not shared through the config store")
	}
}

func TestRequestBearerAndJSON(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"connected"}`))
	}))
	defer srv.Close()

	m := newTestManager(t)
	n := Node{ID: "n1", Name: "x", BaseURL: srv.URL, Token: "secret-token"}

	res := m.Request(context.Background(), n, http.MethodGet, "/api/status", nil)
	if !res.OK {
		t.Fatalf("Request failed: %+v", res)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/api/status" {
		t.Errorf("path = %q", gotPath)
	}
	data, ok := res.Data.(map[string]any)
	if !ok || data["status"] != "connected" {
		t.Errorf("Data = %+v", res.Data)
	}
}

func TestRequestErrorDetailExtraction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"not authenticated"}`))
	}))
	defer srv.Close()

	m := newTestManager(t)
	n := Node{ID: "n1", Name: "x", BaseURL: srv.URL}

	res := m.Request(context.Background(), n, http.MethodPost, "api/connect", nil)
	if res.OK {
		t.Fatal("Request reported OK for a 401")
	}
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", res.StatusCode)
	}
	if res.Error != "not authenticated" {
		t.Errorf("Error = %q, want the remote detail", res.Error)
	}
}

func TestRequestUnreachableNode(t *testing.T) {
	m := newTestManager(t)
	n := Node{ID: "n1", Name: "x", BaseURL: "http://127.0.0.1:1"}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res := m.Request(ctx, n, http.MethodGet, "/api/status", nil)
	if res.OK {
		t.Fatal("Request reported OK against a dead endpoint")
	}
	if res.Error == "" {
		t.Error("no error description for an unreachable node")
	}
}
