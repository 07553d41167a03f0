package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/domain"
	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/persistence/memory"
)

func newTestMux(repo domain.Repository) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(domain.NewService(repo)).RegisterRoutes(mux)
	return mux
}

func do(mux http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func signupPath(activity, email string) string {
	return fmt.Sprintf("/activities/%s/signup?email=%s", url.PathEscape(activity), url.QueryEscape(email))
}

func unregisterPath(activity, email string) string {
	return fmt.Sprintf("/activities/%s/unregister?email=%s", url.PathEscape(activity), url.QueryEscape(email))
}

func decodeDetail(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rr.Body.String(), err)
	}
	return body.Detail
}

func TestListActivitiesReturnsSeededTable(t *testing.T) {
	mux := newTestMux(memory.NewRepository())

	rr := do(mux, http.MethodGet, "/activities")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var body map[string]domain.ActivityDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 9 {
		t.Fatalf("expected 9 activities got %d", len(body))
	}
	chess := body["Chess Club"]
	if chess.Schedule != "Fridays, 3:30 PM - 5:00 PM" {
		t.Fatalf("unexpected schedule %q", chess.Schedule)
	}
	if chess.MaxParticipants == nil || *chess.MaxParticipants != 12 {
		t.Fatalf("unexpected max_participants %v", chess.MaxParticipants)
	}
	if len(chess.Participants) != 2 {
		t.Fatalf("expected 2 participants got %v", chess.Participants)
	}
}

func TestSignupChessClub(t *testing.T) {
	mux := newTestMux(memory.NewRepository())

	rr := do(mux, http.MethodPost, signupPath("Chess Club", "new@mergington.edu"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp MessageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message != "Signed up new@mergington.edu for Chess Club" {
		t.Fatalf("unexpected message %q", resp.Message)
	}

	list := do(mux, http.MethodGet, "/activities")
	var body map[string]domain.ActivityDetails
	if err := json.Unmarshal(list.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	participants := body["Chess Club"].Participants
	if len(participants) != 3 || participants[2] != "new@mergington.edu" {
		t.Fatalf("unexpected participants %v", participants)
	}
}

func TestSignupUnknownActivity(t *testing.T) {
	mux := newTestMux(memory.NewRepository())

	rr := do(mux, http.MethodPost, signupPath("Knitting Club", "new@mergington.edu"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
	if detail := decodeDetail(t, rr); detail != "Activity not found" {
		t.Fatalf("unexpected detail %q", detail)
	}
}

func TestSignupFullActivity(t *testing.T) {
	repo := memory.NewRepositoryWith([]domain.SeedActivity{{
		Activity:     domain.Activity{Name: "Robotics", MaxParticipants: domain.Capacity(2)},
		Participants: []string{"a@mergington.edu"},
	}})
	mux := newTestMux(repo)

	if rr := do(mux, http.MethodPost, signupPath("Robotics", "b@mergington.edu")); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}

	rr := do(mux, http.MethodPost, signupPath("Robotics", "c@mergington.edu"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if detail := decodeDetail(t, rr); detail != "Activity is full" {
		t.Fatalf("unexpected detail %q", detail)
	}
}

func TestSignupTwiceIsRejected(t *testing.T) {
	mux := newTestMux(memory.NewRepository())

	if rr := do(mux, http.MethodPost, signupPath("Math Club", "twice@mergington.edu")); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	rr := do(mux, http.MethodPost, signupPath("Math Club", "twice@mergington.edu"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if detail := decodeDetail(t, rr); detail != "Student is already signed up" {
		t.Fatalf("unexpected detail %q", detail)
	}
}

func TestUnregisterFlow(t *testing.T) {
	mux := newTestMux(memory.NewRepository())

	rr := do(mux, http.MethodDelete, unregisterPath("Chess Club", "michael@mergington.edu"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp MessageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Message != "Unregistered michael@mergington.edu from Chess Club" {
		t.Fatalf("unexpected message %q", resp.Message)
	}

	rr = do(mux, http.MethodDelete, unregisterPath("Chess Club", "michael@mergington.edu"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if detail := decodeDetail(t, rr); detail != "Student is not signed up for this activity" {
		t.Fatalf("unexpected detail %q", detail)
	}

	rr = do(mux, http.MethodDelete, unregisterPath("Knitting Club", "michael@mergington.edu"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestEmailValidation(t *testing.T) {
	mux := newTestMux(memory.NewRepository())

	paths := []string{
		"/activities/Chess%20Club/signup",
		"/activities/Chess%20Club/signup?email=",
		"/activities/Chess%20Club/signup?email=not-an-email",
		"/activities/Chess%20Club/signup?email=a@x.edu&email=b@x.edu",
	}
	for _, path := range paths {
		rr := do(mux, http.MethodPost, path)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422 got %d", path, rr.Code)
		}
	}
}

func TestWrongMethodIsRejected(t *testing.T) {
	mux := newTestMux(memory.NewRepository())

	cases := []struct {
		method string
		path   string
		allow  string
	}{
		{http.MethodGet, signupPath("Chess Club", "new@mergington.edu"), "POST"},
		{http.MethodPost, unregisterPath("Chess Club", "michael@mergington.edu"), "DELETE"},
		{http.MethodPut, "/activities", "GET, HEAD"},
	}
	for _, tc := range cases {
		rr := do(mux, tc.method, tc.path)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405 got %d", tc.method, tc.path, rr.Code)
		}
		if got := rr.Header().Get("Allow"); got != tc.allow {
			t.Fatalf("%s %s: expected Allow %q got %q", tc.method, tc.path, tc.allow, got)
		}
		if detail := decodeDetail(t, rr); detail != "Method Not Allowed" {
			t.Fatalf("%s %s: unexpected detail %q", tc.method, tc.path, detail)
		}
	}

	// The participant list is untouched by the rejected calls.
	rr := do(mux, http.MethodGet, "/activities")
	if !strings.Contains(rr.Body.String(), "michael@mergington.edu") {
		t.Fatalf("unregister ran on a rejected method: %s", rr.Body.String())
	}
}

func TestStoreFailureMapsToBadGateway(t *testing.T) {
	mux := newTestMux(failingRepo{})

	rr := do(mux, http.MethodGet, "/activities")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", rr.Code)
	}
	rr = do(mux, http.MethodPost, signupPath("Chess Club", "new@mergington.edu"))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", rr.Code)
	}
}

func TestHealthzReportsBackend(t *testing.T) {
	mux := newTestMux(memory.NewRepository())

	rr := do(mux, http.MethodGet, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["backend"] != memory.Backend {
		t.Fatalf("unexpected backend %q", body["backend"])
	}
}

func TestRootRedirectsToStaticIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>Mergington</h1>"), 0o600); err != nil {
		t.Fatalf("write index: %v", err)
	}
	mux := newTestMux(memory.NewRepository())
	RegisterStatic(mux, dir)

	rr := do(mux, http.MethodGet, "/")
	if rr.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307 got %d", rr.Code)
	}
	loc := rr.Header().Get("Location")
	if loc != "/static/" {
		t.Fatalf("unexpected location %q", loc)
	}

	rr = do(mux, http.MethodGet, loc)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Mergington") {
		t.Fatalf("index not served: %q", rr.Body.String())
	}
}

type failingRepo struct{}

func (failingRepo) Backend() string { return "failing" }

func (failingRepo) ListActivities(context.Context) ([]domain.ActivityRoster, error) {
	return nil, fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
}

func (failingRepo) Atomically(context.Context, func(domain.Queries) error) error {
	return fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
}

func (failingRepo) FindActivityByName(context.Context, string) (*domain.Activity, error) {
	return nil, domain.ErrStoreUnavailable
}

func (failingRepo) FindOrCreateUser(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrStoreUnavailable
}

func (failingRepo) FindUser(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrStoreUnavailable
}

func (failingRepo) CountParticipants(context.Context, int64) (int, error) {
	return 0, domain.ErrStoreUnavailable
}

func (failingRepo) HasParticipation(context.Context, int64, int64) (bool, error) {
	return false, domain.ErrStoreUnavailable
}

func (failingRepo) AddParticipation(context.Context, int64, int64) error {
	return domain.ErrStoreUnavailable
}

func (failingRepo) RemoveParticipation(context.Context, int64, int64) (bool, error) {
	return false, domain.ErrStoreUnavailable
}
