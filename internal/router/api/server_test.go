package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sebas/acd/internal/router/metrics"
	"github.com/sebas/acd/internal/router/repository"
	"github.com/sebas/acd/internal/router/store"
)

type notifyRecorder struct {
	calls []string
}

func (n *notifyRecorder) AgentAvailable(cc, agentID string) {
	n.calls = append(n.calls, cc+"/"+agentID)
}

func newTestServer() (*Server, *repository.Repository, *notifyRecorder) {
	st := store.NewMemory()
	repo := repository.New(st)
	notifier := &notifyRecorder{}
	srv := NewServer(":0", repo, st, notifier, metrics.New())
	return srv, repo, notifier
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestQueueLifecycle(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := doJSON(t, srv, http.MethodPost, "/callcenters/cc1/queues",
		`{"id":"support","name":"Support","timings":"24/7"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create queue: got %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/callcenters/cc1/queues/support", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get queue: got %d", rec.Code)
	}
	var q repository.Queue
	if err := json.NewDecoder(rec.Body).Decode(&q); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if q.Strategy != repository.StrategyRoundRobin {
		t.Errorf("strategy not defaulted: got %q", q.Strategy)
	}

	rec = doJSON(t, srv, http.MethodGet, "/callcenters/cc1/queues", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list queues: got %d", rec.Code)
	}
	var listed struct {
		Queues []string `json:"queues"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Queues) != 1 || listed.Queues[0] != "support" {
		t.Errorf("unexpected queue list: %v", listed.Queues)
	}
}

func TestCreateQueueRejectsMissingFields(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := doJSON(t, srv, http.MethodPost, "/callcenters/cc1/queues", `{"id":"q1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetUnknownQueueReturns404(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := doJSON(t, srv, http.MethodGet, "/callcenters/cc1/queues/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAgentLoginNotifiesRouter(t *testing.T) {
	srv, _, notifier := newTestServer()

	rec := doJSON(t, srv, http.MethodPost, "/callcenters/cc1/agents",
		`{"id":"alice","name":"Alice","endpoint":"PJSIP/alice","shiftTimings":"24/7"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create agent: got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/callcenters/cc1/agents/alice/login",
		`{"queues":["support"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: got %d: %s", rec.Code, rec.Body.String())
	}
	if len(notifier.calls) != 1 || notifier.calls[0] != "cc1/alice" {
		t.Errorf("router not notified: %v", notifier.calls)
	}
}

func TestDoubleLoginConflicts(t *testing.T) {
	srv, _, _ := newTestServer()

	doJSON(t, srv, http.MethodPost, "/callcenters/cc1/agents",
		`{"id":"alice","name":"Alice","endpoint":"PJSIP/alice","shiftTimings":"24/7"}`)
	doJSON(t, srv, http.MethodPost, "/callcenters/cc1/agents/alice/login", `{"queues":["support"]}`)

	rec := doJSON(t, srv, http.MethodPost, "/callcenters/cc1/agents/alice/login", `{"queues":["support"]}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second login: got %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestLogoutClearsStatus(t *testing.T) {
	srv, repo, _ := newTestServer()

	doJSON(t, srv, http.MethodPost, "/callcenters/cc1/agents",
		`{"id":"alice","name":"Alice","endpoint":"PJSIP/alice","shiftTimings":"24/7"}`)
	doJSON(t, srv, http.MethodPost, "/callcenters/cc1/agents/alice/login", `{"queues":["support"]}`)

	rec := doJSON(t, srv, http.MethodPost, "/callcenters/cc1/agents/alice/logout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: got %d", rec.Code)
	}

	a, err := repo.GetAgent(context.Background(), "cc1", "alice")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if a.Status != repository.StatusLoggedOut {
		t.Errorf("status after logout: got %s", a.Status)
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := doJSON(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := doJSON(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "acd_calls_entered_total") {
		t.Errorf("metrics output missing router counters")
	}
}
