package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var ctx = context.Background()

func TestSearchEntity(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"entity":{"id":"e1","tags":[{"name":"drum and bass","count":95},{"name":"electronic","count":80}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key-123")
	got, err := c.SearchEntity(ctx, "Alpha Band A", "track")
	if err != nil {
		t.Fatalf("SearchEntity: %v", err)
	}

	if got.ID != "e1" {
		t.Errorf("id = %q, want e1", got.ID)
	}
	if len(got.Tags) != 2 || got.Tags[0].Name != "drum and bass" {
		t.Errorf("tags = %+v, want drum and bass first", got.Tags)
	}
	if gotAuth != "Bearer key-123" {
		t.Errorf("auth = %q, want Bearer key-123", gotAuth)
	}
	if !strings.Contains(gotPath, "kind=track") {
		t.Errorf("path = %q, want kind param", gotPath)
	}
}

func TestSearchEntity_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"entity":null}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	got, err := c.SearchEntity(ctx, "nobody knows this band", "artist")
	if err != nil {
		t.Fatalf("SearchEntity: %v", err)
	}
	if got.ID != "" || len(got.Tags) != 0 {
		t.Errorf("entity = %+v, want zero value for no match", got)
	}
}

func TestFeatures_ByID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Write([]byte(`{"features":{"tempo":128,"energy":0.8,"valence":0.6,"mode":1}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	got, err := c.Features(ctx, "t1", "Alpha", "Band A")
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	if got == nil {
		t.Fatal("expected features, got nil")
	}
	if got.TempoBPM != 128 || got.Mode != 1 {
		t.Errorf("features = %+v, want tempo 128 mode 1", got)
	}
	if !strings.Contains(gotPath, "id=t1") {
		t.Errorf("path = %q, want id lookup", gotPath)
	}
	if strings.Contains(gotPath, "title=") {
		t.Errorf("path = %q, title should be omitted when id is set", gotPath)
	}
}

func TestFeatures_ByTitleArtist(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Write([]byte(`{"features":null}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	got, err := c.Features(ctx, "", "Alpha", "Band A")
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	if got != nil {
		t.Errorf("features = %+v, want nil for no data", got)
	}
	if !strings.Contains(gotPath, "title=Alpha") || !strings.Contains(gotPath, "artist=Band+A") {
		t.Errorf("path = %q, want title+artist lookup", gotPath)
	}
}

func TestFeatures_NotFoundIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	got, err := c.Features(ctx, "t-missing", "", "")
	if err != nil {
		t.Fatalf("Features: %v", err)
	}
	if got != nil {
		t.Errorf("features = %+v, want nil on provider 404", got)
	}
}

func TestFeatures_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.Features(ctx, "t1", "", "")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want it to contain the status", err.Error())
	}
}
