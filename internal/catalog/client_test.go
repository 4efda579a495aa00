package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var ctx = context.Background()

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := New(srv.URL, nil)
	c.httpClient = srv.Client()
	return c, srv
}

func TestSearch(t *testing.T) {
	var gotPath string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"id":"t1","title":"Alpha","artists":["Band A"],"year":2019,"popularity":0.8},
			{"id":"","title":"dropped: no id"},
			{"id":"t3","title":"","artists":["Band C"]}
		]}`))
	})
	defer srv.Close()

	got, err := c.Search(ctx, "morning run", "songs", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1 (invalid entries dropped)", len(got))
	}
	if got[0].CatalogID != "t1" || got[0].Title != "Alpha" {
		t.Errorf("candidate = %+v, want t1/Alpha", got[0])
	}
	if !strings.Contains(gotPath, "q=morning+run") {
		t.Errorf("path = %q, want encoded query", gotPath)
	}
	if !strings.Contains(gotPath, "filter=songs") {
		t.Errorf("path = %q, want filter param", gotPath)
	}
}

func TestSearch_ErrorStatus(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	})
	defer srv.Close()

	_, err := c.Search(ctx, "anything", "", 5)
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error = %q, want it to contain the status", err.Error())
	}
}

func TestRecommendations_SeedsAndTargets(t *testing.T) {
	var gotPath string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Write([]byte(`{"results":[{"id":"r1","title":"Rec"}]}`))
	})
	defer srv.Close()

	seed := RecommendationSeed{
		SeedIDs:       []string{"t1", "t2"},
		UseTargets:    true,
		TargetValence: 0.75,
		TargetEnergy:  0.5,
		Limit:         15,
	}
	got, err := c.Recommendations(ctx, seed)
	if err != nil {
		t.Fatalf("Recommendations: %v", err)
	}
	if len(got) != 1 || got[0].CatalogID != "r1" {
		t.Errorf("candidates = %+v, want one r1", got)
	}

	if !strings.Contains(gotPath, "seeds=t1%2Ct2") {
		t.Errorf("path = %q, want joined seeds", gotPath)
	}
	if !strings.Contains(gotPath, "target_valence=0.750") {
		t.Errorf("path = %q, want valence target", gotPath)
	}
	if !strings.Contains(gotPath, "limit=15") {
		t.Errorf("path = %q, want limit", gotPath)
	}
}

func TestCreatePlaylist(t *testing.T) {
	var gotBody map[string]string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"id":"pl-9"}`))
	})
	defer srv.Close()

	id, err := c.CreatePlaylist(ctx, "Mixtape Aug 26, 2026", "Made from our conversation.", "PRIVATE")
	if err != nil {
		t.Fatalf("CreatePlaylist: %v", err)
	}
	if id != "pl-9" {
		t.Errorf("id = %q, want pl-9", id)
	}
	if gotBody["privacy"] != "PRIVATE" {
		t.Errorf("privacy = %q, want PRIVATE", gotBody["privacy"])
	}
}

func TestCreatePlaylist_NoID(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	defer srv.Close()

	_, err := c.CreatePlaylist(ctx, "Untitled", "", "PRIVATE")
	if err == nil {
		t.Fatal("expected error when provider returns no id")
	}
}

func TestAddTracks(t *testing.T) {
	var gotPath string
	var gotBody struct {
		TrackIDs []string `json:"track_ids"`
	}
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	})
	defer srv.Close()

	if err := c.AddTracks(ctx, "pl-9", []string{"t1", "t2"}); err != nil {
		t.Fatalf("AddTracks: %v", err)
	}
	if gotPath != "/v1/playlists/pl-9/tracks" {
		t.Errorf("path = %q, want /v1/playlists/pl-9/tracks", gotPath)
	}
	if len(gotBody.TrackIDs) != 2 {
		t.Errorf("track_ids = %v, want 2 ids", gotBody.TrackIDs)
	}
}

func TestLibraryPlaylists(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"playlists":[{"id":"pl-1","title":"Favorites","track_count":42}]}`))
	})
	defer srv.Close()

	got, err := c.LibraryPlaylists(ctx)
	if err != nil {
		t.Fatalf("LibraryPlaylists: %v", err)
	}
	if len(got) != 1 || got[0].ID != "pl-1" || got[0].TrackCount != 42 {
		t.Errorf("playlists = %+v, want one pl-1 with 42 tracks", got)
	}
}

func TestDeletePlaylist_AcceptsNoContent(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %q, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	defer srv.Close()

	if err := c.DeletePlaylist(ctx, "pl-1"); err != nil {
		t.Fatalf("DeletePlaylist: %v", err)
	}
}
