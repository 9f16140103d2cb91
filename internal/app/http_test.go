package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"waypost/api/internal/store"
)

// memoryState backs the HTTP tests with a tiny in-memory dataset so a whole
// guide lifecycle can run over the wire against the real handler.
type memoryState struct {
	mu        sync.Mutex
	seq       int
	base      time.Time
	roles     map[string]string
	users     map[string]store.User
	guides    map[string]store.Guide
	editions  map[string][]store.Edition
	comments  []store.Comment
	approvals []store.Approval
	placed    map[string]bool
}

func newMemoryState() *memoryState {
	return &memoryState{
		base:     time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		roles:    map[string]string{"Ada": "author", "Priya": "reviewer", "Root": "admin"},
		users:    make(map[string]store.User),
		guides:   make(map[string]store.Guide),
		editions: make(map[string][]store.Edition),
		placed:   make(map[string]bool),
	}
}

func (m *memoryState) tick() time.Time {
	m.seq++
	return m.base.Add(time.Duration(m.seq) * time.Second)
}

func (m *memoryState) editionByID(editionID string) (store.Edition, bool) {
	for _, editions := range m.editions {
		for _, edition := range editions {
			if edition.ID == editionID {
				return edition, true
			}
		}
	}
	return store.Edition{}, false
}

func newHTTPFixture(t *testing.T) (*httptest.Server, *memoryState) {
	t.Helper()
	state := newMemoryState()

	fake := &fakeStore{
		ensureUserByNameFn: func(_ context.Context, name string) (store.User, error) {
			state.mu.Lock()
			defer state.mu.Unlock()
			for _, user := range state.users {
				if user.DisplayName == name {
					return user, nil
				}
			}
			role, ok := state.roles[name]
			if !ok {
				role = "author"
			}
			user := store.User{ID: fmt.Sprintf("usr_%d", len(state.users)+1), DisplayName: name, Role: role}
			state.users[user.ID] = user
			return user, nil
		},
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			state.mu.Lock()
			defer state.mu.Unlock()
			if user, ok := state.users[userID]; ok {
				return user, nil
			}
			return store.User{}, sql.ErrNoRows
		},
		insertGuideFn: func(_ context.Context, guide store.Guide) error {
			state.mu.Lock()
			defer state.mu.Unlock()
			state.guides[guide.ID] = guide
			return nil
		},
		getGuideFn: func(_ context.Context, guideID string) (store.Guide, error) {
			state.mu.Lock()
			defer state.mu.Unlock()
			if guide, ok := state.guides[guideID]; ok {
				return guide, nil
			}
			return store.Guide{}, sql.ErrNoRows
		},
		listGuidesFn: func(_ context.Context, _ store.GuideFilter) ([]store.GuideSummary, error) {
			state.mu.Lock()
			defer state.mu.Unlock()
			summaries := make([]store.GuideSummary, 0, len(state.guides))
			for id, guide := range state.guides {
				editions := state.editions[id]
				if len(editions) == 0 {
					continue
				}
				summaries = append(summaries, store.GuideSummary{Guide: guide, Latest: editions[len(editions)-1]})
			}
			return summaries, nil
		},
		insertEditionFn: func(_ context.Context, e store.Edition) (store.Edition, error) {
			state.mu.Lock()
			defer state.mu.Unlock()
			e.CreatedAt = state.tick()
			e.UpdatedAt = e.CreatedAt
			if author, ok := state.users[e.AuthorID]; ok {
				e.AuthorName = author.DisplayName
			}
			state.editions[e.GuideID] = append(state.editions[e.GuideID], e)
			return e, nil
		},
		latestEditionFn: func(_ context.Context, guideID string) (store.Edition, error) {
			state.mu.Lock()
			defer state.mu.Unlock()
			editions := state.editions[guideID]
			if len(editions) == 0 {
				return store.Edition{}, sql.ErrNoRows
			}
			return editions[len(editions)-1], nil
		},
		listCycleEditionsFn: func(_ context.Context, guideID string, version int) ([]store.Edition, error) {
			state.mu.Lock()
			defer state.mu.Unlock()
			var cycle []store.Edition
			for _, edition := range state.editions[guideID] {
				if edition.Version == version {
					cycle = append(cycle, edition)
				}
			}
			return cycle, nil
		},
		insertCommentFn: func(_ context.Context, c store.Comment) (store.Comment, error) {
			state.mu.Lock()
			defer state.mu.Unlock()
			c.CreatedAt = state.tick()
			if author, ok := state.users[c.AuthorID]; ok {
				c.AuthorName = author.DisplayName
			}
			state.comments = append(state.comments, c)
			return c, nil
		},
		listCycleCommentsFn: func(_ context.Context, guideID string, version int) ([]store.Comment, error) {
			state.mu.Lock()
			defer state.mu.Unlock()
			var cycle []store.Comment
			for _, comment := range state.comments {
				edition, ok := state.editionByID(comment.EditionID)
				if ok && edition.GuideID == guideID && edition.Version == version {
					cycle = append(cycle, comment)
				}
			}
			return cycle, nil
		},
		insertApprovalFn: func(_ context.Context, a store.Approval) (store.Approval, error) {
			state.mu.Lock()
			defer state.mu.Unlock()
			a.CreatedAt = state.tick()
			state.approvals = append(state.approvals, a)
			return a, nil
		},
		listCycleApprovalsFn: func(_ context.Context, guideID string, version int) ([]store.Approval, error) {
			state.mu.Lock()
			defer state.mu.Unlock()
			var cycle []store.Approval
			for _, approval := range state.approvals {
				edition, ok := state.editionByID(approval.EditionID)
				if ok && edition.GuideID == guideID && edition.Version == version {
					cycle = append(cycle, approval)
				}
			}
			return cycle, nil
		},
		guideIncludedInTopicFn: func(_ context.Context, guideID string) (bool, error) {
			state.mu.Lock()
			defer state.mu.Unlock()
			return state.placed[guideID], nil
		},
	}

	service := newTestService(fake)
	server := httptest.NewServer(NewHTTPServer(service, "*").Handler())
	t.Cleanup(server.Close)
	return server, state
}

func doRequest(t *testing.T, server *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewBuffer(encoded)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, payload)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode %s %s response: %v", method, path, err)
	}
	return resp.StatusCode, decoded
}

func loginAs(t *testing.T, server *httptest.Server, name string) string {
	t.Helper()
	status, body := doRequest(t, server, http.MethodPost, "/api/session/login", "", map[string]string{"name": name})
	if status != http.StatusOK {
		t.Fatalf("login as %s: status %d body %v", name, status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login as %s: no token in %v", name, body)
	}
	return token
}

func TestHealthRoute(t *testing.T) {
	server, _ := newHTTPFixture(t)
	status, body := doRequest(t, server, http.MethodGet, "/api/health", "", nil)
	if status != http.StatusOK || body["ok"] != true {
		t.Fatalf("health: status %d body %v", status, body)
	}
}

func TestGuideRoutesRequireSession(t *testing.T) {
	server, _ := newHTTPFixture(t)
	status, body := doRequest(t, server, http.MethodGet, "/api/guides", "", nil)
	if status != http.StatusUnauthorized || body["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected 401 UNAUTHORIZED, got %d %v", status, body)
	}
}

func TestSessionRouteAnonymous(t *testing.T) {
	server, _ := newHTTPFixture(t)
	status, body := doRequest(t, server, http.MethodGet, "/api/session", "", nil)
	if status != http.StatusOK || body["authenticated"] != false {
		t.Fatalf("expected anonymous session, got %d %v", status, body)
	}
}

func TestGuideLifecycleOverHTTP(t *testing.T) {
	server, state := newHTTPFixture(t)
	author := loginAs(t, server, "Ada")
	reviewer := loginAs(t, server, "Priya")

	status, guide := doRequest(t, server, http.MethodPost, "/api/guides", author, map[string]any{
		"title": "Pair programming",
		"body":  "## Why pair\n\nTwo heads.",
	})
	if status != http.StatusCreated {
		t.Fatalf("create guide: status %d body %v", status, guide)
	}
	guideID, _ := guide["id"].(string)
	if guideID == "" {
		t.Fatalf("create guide: no id in %v", guide)
	}

	status, body := doRequest(t, server, http.MethodPost, "/api/guides/"+guideID+"/request-review", author, nil)
	if status != http.StatusOK {
		t.Fatalf("request review: status %d body %v", status, body)
	}

	status, body = doRequest(t, server, http.MethodPost, "/api/guides/"+guideID+"/comments", reviewer, map[string]string{"body": "Tighten the intro"})
	if status != http.StatusCreated {
		t.Fatalf("comment: status %d body %v", status, body)
	}

	// Authors cannot approve their own work.
	status, body = doRequest(t, server, http.MethodPost, "/api/guides/"+guideID+"/approve", author, nil)
	if status != http.StatusForbidden || body["code"] != "FORBIDDEN" {
		t.Fatalf("author approve: expected 403 FORBIDDEN, got %d %v", status, body)
	}

	status, body = doRequest(t, server, http.MethodPost, "/api/guides/"+guideID+"/approve", reviewer, nil)
	if status != http.StatusOK {
		t.Fatalf("approve: status %d body %v", status, body)
	}

	// Unplaced guides cannot go live.
	status, body = doRequest(t, server, http.MethodPost, "/api/guides/"+guideID+"/publish", reviewer, nil)
	if status != http.StatusUnprocessableEntity || body["code"] != "PUBLISH_PRECONDITION" {
		t.Fatalf("publish unplaced: expected 422 PUBLISH_PRECONDITION, got %d %v", status, body)
	}

	state.mu.Lock()
	state.placed[guideID] = true
	state.mu.Unlock()

	status, body = doRequest(t, server, http.MethodPost, "/api/guides/"+guideID+"/publish", reviewer, nil)
	if status != http.StatusOK {
		t.Fatalf("publish: status %d body %v", status, body)
	}
	edition, _ := body["edition"].(map[string]any)
	if edition["state"] != "published" {
		t.Fatalf("publish: edition %v", edition)
	}
	if _, ok := body["content"]; !ok {
		t.Fatal("publish: expected rendered content in payload")
	}

	status, body = doRequest(t, server, http.MethodGet, "/api/guides/"+guideID+"/thread", author, nil)
	if status != http.StatusOK {
		t.Fatalf("thread: status %d body %v", status, body)
	}
	events, _ := body["events"].([]any)
	var kinds []string
	for _, raw := range events {
		event, _ := raw.(map[string]any)
		kinds = append(kinds, event["kind"].(string))
	}
	want := []string{"new_draft", "state_changed", "commented", "state_changed", "state_changed"}
	if len(kinds) != len(want) {
		t.Fatalf("thread kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("thread kinds = %v, want %v", kinds, want)
		}
	}

	status, body = doRequest(t, server, http.MethodPost, "/api/guides/"+guideID+"/new-draft", author, nil)
	if status != http.StatusOK {
		t.Fatalf("new draft: status %d body %v", status, body)
	}
	edition, _ = body["edition"].(map[string]any)
	if edition["version"] != float64(2) || edition["state"] != "draft" {
		t.Fatalf("new draft: edition %v", edition)
	}
}

func TestApproveDraftIsInvalidTransition(t *testing.T) {
	server, _ := newHTTPFixture(t)
	author := loginAs(t, server, "Ada")
	reviewer := loginAs(t, server, "Priya")

	_, guide := doRequest(t, server, http.MethodPost, "/api/guides", author, map[string]any{"title": "Retrospectives"})
	guideID, _ := guide["id"].(string)

	status, body := doRequest(t, server, http.MethodPost, "/api/guides/"+guideID+"/approve", reviewer, nil)
	if status != http.StatusConflict || body["code"] != "INVALID_TRANSITION" {
		t.Fatalf("expected 409 INVALID_TRANSITION, got %d %v", status, body)
	}
	details, _ := body["details"].(map[string]any)
	if details["from"] != "draft" || details["action"] != "approve" {
		t.Fatalf("details = %v", details)
	}
}

func TestUnknownGuideActionIs404(t *testing.T) {
	server, _ := newHTTPFixture(t)
	author := loginAs(t, server, "Ada")
	status, body := doRequest(t, server, http.MethodPost, "/api/guides/gd_1/frobnicate", author, nil)
	if status != http.StatusNotFound || body["code"] != "NOT_FOUND" {
		t.Fatalf("expected 404 NOT_FOUND, got %d %v", status, body)
	}
}

func TestTopicRoutesRequireAdmin(t *testing.T) {
	server, _ := newHTTPFixture(t)
	author := loginAs(t, server, "Ada")
	admin := loginAs(t, server, "Root")

	status, body := doRequest(t, server, http.MethodPost, "/api/topics", author, map[string]string{"title": "Agile delivery"})
	if status != http.StatusForbidden {
		t.Fatalf("author create topic: expected 403, got %d %v", status, body)
	}

	status, body = doRequest(t, server, http.MethodPost, "/api/topics", admin, map[string]string{"title": "Agile delivery"})
	if status != http.StatusCreated || body["slug"] != "agile-delivery" {
		t.Fatalf("admin create topic: status %d body %v", status, body)
	}
}
