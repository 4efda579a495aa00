package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/mixtape/internal/conversation"
	"github.com/kalambet/mixtape/internal/storage"
)

const testToken = "test-token"

func newTestApp(t *testing.T) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	deps := AppDeps{
		Store:     store,
		Sessions:  conversation.NewManager(store),
		Generator: &mockGenerator{results: threeTracks()},
		Catalog:   &mockCatalog{},
		Token:     testToken,
		UserID:    "local",
	}
	return NewAppHandler(deps), store
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	h, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	h, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h, store := newTestApp(t)

	w := doRequest(t, h, http.MethodPost, "/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	decodeBody(t, w, &created)
	if created.SessionID == "" || created.Message == "" {
		t.Fatalf("incomplete session response: %+v", created)
	}

	turnBody := `{"message":"rock and jazz","reply":"what about workouts?","profile":` + confidentTurn + `}`
	for i := 0; i < 5; i++ {
		w = doRequest(t, h, http.MethodPost, "/sessions/"+created.SessionID+"/turns", turnBody)
		if w.Code != http.StatusOK {
			t.Fatalf("turn %d: expected 200, got %d: %s", i, w.Code, w.Body.String())
		}
	}

	var status struct {
		State      string `json:"state"`
		Confidence int    `json:"confidence"`
		Turns      int    `json:"turns"`
	}
	decodeBody(t, w, &status)
	if status.Turns != 5 {
		t.Fatalf("expected 5 turns, got %d", status.Turns)
	}
	if status.State != string(conversation.StateReadyToGenerate) {
		t.Fatalf("expected ready state, got %s", status.State)
	}

	w = doRequest(t, h, http.MethodPost, "/sessions/"+created.SessionID+"/generate", `{"title":"Morning Run"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var out GeneratedPlaylist
	decodeBody(t, w, &out)
	if out.PlaylistID != "pl-1" || out.Title != "Morning Run" || len(out.Tracks) != 3 {
		t.Fatalf("unexpected playlist: %+v", out)
	}
	if out.ProfileCode == "" {
		t.Fatal("expected a profile code in the response")
	}

	sess, err := store.GetSession(context.Background(), created.SessionID)
	if err != nil {
		t.Fatalf("getting session: %v", err)
	}
	if !sess.Completed {
		t.Fatal("expected session completed after generation")
	}

	// A completed session rejects further turns.
	w = doRequest(t, h, http.MethodPost, "/sessions/"+created.SessionID+"/turns", turnBody)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on completed session, got %d", w.Code)
	}
}

func TestGenerate_RefusalConflict(t *testing.T) {
	h, _ := newTestApp(t)

	w := doRequest(t, h, http.MethodPost, "/sessions", "")
	var created struct {
		SessionID string `json:"session_id"`
	}
	decodeBody(t, w, &created)

	turnBody := `{"message":"rock","reply":"more?","profile":` + confidentTurn + `}`
	for i := 0; i < 2; i++ {
		doRequest(t, h, http.MethodPost, "/sessions/"+created.SessionID+"/turns", turnBody)
	}

	w = doRequest(t, h, http.MethodPost, "/sessions/"+created.SessionID+"/generate", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}

	var refusal conversation.Refusal
	decodeBody(t, w, &refusal)
	if refusal.Reason == "" {
		t.Fatal("expected a refusal reason")
	}
	if refusal.TurnsTaken != 2 {
		t.Fatalf("expected 2 turns, got %d", refusal.TurnsTaken)
	}
	if len(refusal.MissingGroups) == 0 {
		t.Fatal("expected missing groups in refusal")
	}
}

func TestAddTurn_UnknownSession(t *testing.T) {
	h, _ := newTestApp(t)

	w := doRequest(t, h, http.MethodPost, "/sessions/nope/turns", `{"message":"hi","reply":"hello"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	h, _ := newTestApp(t)

	w := doRequest(t, h, http.MethodGet, "/sessions/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestPatchProfile_BootstrapsAndMerges(t *testing.T) {
	h, _ := newTestApp(t)

	w := doRequest(t, h, http.MethodPatch, "/profile", `{"style":{"intense":30}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, h, http.MethodPatch, "/profile", `{"musical":{"tempo":20}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, h, http.MethodGet, "/profile", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Code    string `json:"code"`
		Profile struct {
			Style struct {
				Intense int `json:"intense"`
			} `json:"style"`
			Musical struct {
				Tempo int `json:"tempo"`
			} `json:"musical"`
		} `json:"profile"`
	}
	decodeBody(t, w, &resp)
	if resp.Code == "" {
		t.Fatal("expected a profile code")
	}
	if resp.Profile.Style.Intense != 30 || resp.Profile.Musical.Tempo != 20 {
		t.Fatalf("patches did not merge: %+v", resp.Profile)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	h, _ := newTestApp(t)

	if w := doRequest(t, h, http.MethodGet, "/profile", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := doRequest(t, h, http.MethodGet, "/profile/code", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListHistory(t *testing.T) {
	h, store := newTestApp(t)

	now := time.Now().UTC()
	if err := store.RecordPlay(context.Background(), "local", "t1", "Alpha", now); err != nil {
		t.Fatalf("recording play: %v", err)
	}
	if err := store.RecordPlay(context.Background(), "local", "t1", "Alpha", now); err != nil {
		t.Fatalf("recording play: %v", err)
	}

	w := doRequest(t, h, http.MethodGet, "/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var entries []storage.HistoryEntry
	decodeBody(t, w, &entries)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].CatalogID != "t1" || entries[0].PlayCount != 2 {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestRecordPlay(t *testing.T) {
	h, store := newTestApp(t)

	for i := 0; i < 2; i++ {
		w := doRequest(t, h, http.MethodPost, "/history", `{"catalog_id":"t1","artist":"Alpha"}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
	}

	entries, err := store.ListHistory(context.Background(), "local", 10)
	if err != nil {
		t.Fatalf("listing history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].CatalogID != "t1" || entries[0].Artist != "Alpha" || entries[0].PlayCount != 2 {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestRecordPlay_RequiresCatalogID(t *testing.T) {
	h, _ := newTestApp(t)

	w := doRequest(t, h, http.MethodPost, "/history", `{"artist":"Alpha"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListHistory_Empty(t *testing.T) {
	h, _ := newTestApp(t)

	w := doRequest(t, h, http.MethodGet, "/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Fatalf("expected empty array, got %s", body)
	}
}

func TestListSessions(t *testing.T) {
	h, _ := newTestApp(t)

	w := doRequest(t, h, http.MethodPost, "/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	var started map[string]string
	decodeBody(t, w, &started)

	w = doRequest(t, h, http.MethodGet, "/sessions?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var sessions []SessionSummary
	decodeBody(t, w, &sessions)
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].ID != started["session_id"] {
		t.Fatalf("session id = %q, want %q", sessions[0].ID, started["session_id"])
	}
	if sessions[0].State != conversation.StateActive {
		t.Fatalf("state = %q, want active", sessions[0].State)
	}
}
