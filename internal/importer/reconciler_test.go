package importer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/recruitq/internal/candidates"
	"github.com/cuongbtq/recruitq/shared/database/dbtest"
)

// gateway is a fake scraping gateway
type gateway struct {
	mu          sync.Mutex
	loginStatus int
	listings    map[string]string
	requests    int
}

func (g *gateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.requests++
		status := g.loginStatus
		g.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	})
	mux.HandleFunc("GET /api/jobs/{id}/candidates", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.requests++
		body, ok := g.listings[r.PathValue("id")]
		g.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})
	return mux
}

func (g *gateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests
}

type harness struct {
	store   *candidates.SQLStore
	gateway *gateway
	server  *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	store := candidates.NewSQLStore(dbtest.New(t))
	require.NoError(t, store.InsertProject(ctx, &candidates.Project{ID: "proj-1", Name: "Platform"}))
	require.NoError(t, store.InsertProject(ctx, &candidates.Project{ID: "proj-2", Name: "Mobile"}))
	require.NoError(t, store.InsertPosition(ctx, &candidates.Position{ID: "pos-1", ProjectID: "proj-1", Title: "Backend Engineer"}))
	require.NoError(t, store.InsertPosition(ctx, &candidates.Position{ID: "pos-2", ProjectID: "proj-1", Title: "SRE"}))
	require.NoError(t, store.InsertPosition(ctx, &candidates.Position{ID: "pos-3", ProjectID: "proj-2", Title: "iOS Engineer"}))

	gw := &gateway{listings: map[string]string{}}
	srv := httptest.NewServer(gw.handler())
	t.Cleanup(srv.Close)

	return &harness{store: store, gateway: gw, server: srv}
}

func (h *harness) reconciler(t *testing.T, username, password string) *Reconciler {
	t.Helper()
	source, err := NewHTTPSource(HTTPSourceConfig{
		BaseURL:  h.server.URL,
		Username: username,
		Password: password,
	})
	require.NoError(t, err)
	return NewReconciler(h.store, source, "LinkedIn", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (h *harness) listing(id, body string) {
	h.gateway.mu.Lock()
	defer h.gateway.mu.Unlock()
	h.gateway.listings[id] = body
}

const aliceAndBob = `{"candidates": [
	{"name": "Alice Nguyen", "email": "alice@example.com", "status": "Interview"},
	{"name": "Bob Tran", "email": "bob@example.com", "stage": "Phone Screen",
	 "profile_url": "https://profiles.example.com/bob", "tags": ["Go", " "]}
]}`

func TestReconciler_ImportIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.reconciler(t, "recruiter", "secret")

	require.NoError(t, h.store.Insert(ctx, &candidates.Candidate{
		ID: "alice", ProjectID: "proj-1", PositionID: "pos-1",
		Name: "Alice Nguyen", Email: "alice@example.com", Status: candidates.StatusNew,
	}))
	h.listing("job-1", aliceAndBob)

	req := Request{ProjectID: "proj-1", Jobs: []Listing{{PositionID: "pos-1", JobID: "job-1"}}, Notes: "weekly sync"}

	first, err := r.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Imported)
	assert.Equal(t, 1, first.Updated)
	assert.Equal(t, 0, first.Unchanged)
	assert.Equal(t, "weekly sync", first.Notes)
	require.Len(t, first.Jobs, 1)
	assert.Equal(t, "job-1", first.Jobs[0].Locator)
	assert.Equal(t, 2, first.Aggregates.ApplicantsCount["pos-1"])
	assert.Equal(t, 0, first.Aggregates.HiresCount["proj-1"])

	alice, err := h.store.GetCandidate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, candidates.StatusInterview, alice.Status)
	assert.Contains(t, alice.Tags, "linkedin_import")

	bob, err := h.store.FindByEmail(ctx, "proj-1", "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, candidates.StatusScreening, bob.Status)
	assert.Equal(t, candidates.Tags{"linkedin_import", "go"}, bob.Tags)
	assert.Equal(t, "linkedin_import", bob.Source)
	assert.Equal(t, "https://profiles.example.com/bob", bob.ResumeURL)

	second, err := r.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Unchanged)
	for _, c := range second.Jobs[0].Candidates {
		assert.Equal(t, OutcomeUnchanged, c.Outcome, c.Name)
	}
	assert.Equal(t, first.Aggregates, second.Aggregates)
}

func TestReconciler_MatchOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.reconciler(t, "recruiter", "secret")

	for _, c := range []*candidates.Candidate{
		{ID: "by-url", ProjectID: "proj-1", PositionID: "pos-2", Name: "Dana", Status: candidates.StatusNew,
			ResumeURL: "https://profiles.example.com/dana", Source: "linkedin_import", Tags: candidates.Tags{"linkedin_import"}},
		{ID: "by-name", ProjectID: "proj-1", PositionID: "pos-1", Name: "Carol", Status: candidates.StatusHired},
		{ID: "other-project", ProjectID: "proj-2", PositionID: "pos-3", Name: "Erin", Email: "erin@example.com", Status: candidates.StatusNew},
	} {
		require.NoError(t, h.store.Insert(ctx, c))
	}
	h.listing("job-1", `{"candidates": [
		{"name": "Dana R.", "profile_url": "https://profiles.example.com/dana", "status": "Offer extended"},
		{"name": "Carol", "phone": "+84 90 111 2222"},
		{"name": "Erin", "email": "erin@example.com"},
		{"name": ""}
	]}`)

	resp, err := r.Run(ctx, Request{
		ProjectID: "proj-1",
		Jobs:      []Listing{{PositionID: "pos-1", JobID: "job-1"}},
		Debug:     true,
	})
	require.NoError(t, err)

	got := resp.Jobs[0].Candidates
	require.Len(t, got, 4)

	tests := []struct {
		name      string
		result    CandidateResult
		wantID    string
		outcome   Outcome
		matchedBy string
	}{
		{"source url", got[0], "by-url", OutcomeUpdated, "source_url"},
		{"name on position", got[1], "by-name", OutcomeUpdated, "name"},
		{"email scoped to project", got[2], "", OutcomeImported, ""},
		{"nameless record", got[3], "", OutcomeSkipped, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantID != "" {
				assert.Equal(t, tt.wantID, tt.result.CandidateID)
			}
			assert.Equal(t, tt.outcome, tt.result.Outcome)
			assert.Equal(t, tt.matchedBy, tt.result.MatchedBy)
		})
	}

	carol, err := h.store.GetCandidate(ctx, "by-name")
	require.NoError(t, err)
	assert.Equal(t, candidates.StatusHired, carol.Status, "an empty label never regresses status")
	assert.Equal(t, "+84 90 111 2222", carol.Phone)

	dana, err := h.store.GetCandidate(ctx, "by-url")
	require.NoError(t, err)
	assert.Equal(t, candidates.StatusOffer, dana.Status)

	assert.Equal(t, 1, resp.Skipped)
	assert.Equal(t, 1, resp.Aggregates.HiresCount["proj-1"])
	assert.Equal(t, 1, resp.Aggregates.ApplicantsCount["pos-2"])
}

func TestReconciler_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name     string
		username string
		req      Request
	}{
		{
			name:     "position from another project",
			username: "recruiter",
			req:      Request{ProjectID: "proj-1", Jobs: []Listing{{PositionID: "pos-3", JobID: "job-1"}}},
		},
		{
			name:     "unknown position",
			username: "recruiter",
			req:      Request{ProjectID: "proj-1", Jobs: []Listing{{PositionID: "pos-9", JobID: "job-1"}}},
		},
		{
			name:     "unknown project",
			username: "recruiter",
			req:      Request{ProjectID: "proj-9", Jobs: []Listing{{PositionID: "pos-1", JobID: "job-1"}}},
		},
		{
			name:     "missing credentials",
			username: "",
			req:      Request{ProjectID: "proj-1", Jobs: []Listing{{PositionID: "pos-1", JobID: "job-1"}}},
		},
		{
			name:     "no listings",
			username: "recruiter",
			req:      Request{ProjectID: "proj-1"},
		},
		{
			name:     "bad filter pattern",
			username: "recruiter",
			req: Request{ProjectID: "proj-1", Jobs: []Listing{{
				PositionID: "pos-1", JobID: "job-1", Filters: &Filter{Location: []string{"[hanoi"}},
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.listing("job-1", aliceAndBob)
			r := h.reconciler(t, tt.username, "secret")

			_, err := r.Run(context.Background(), tt.req)
			require.Error(t, err)

			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, KindConfiguration, Kind(err))
			assert.Zero(t, h.gateway.count(), "no external call before configuration passes")
		})
	}
}

func TestReconciler_LoginRejected(t *testing.T) {
	h := newHarness(t)
	h.gateway.loginStatus = http.StatusUnauthorized
	h.listing("job-1", aliceAndBob)

	_, err := h.reconciler(t, "recruiter", "wrong").Run(context.Background(), Request{
		ProjectID: "proj-1",
		Jobs:      []Listing{{PositionID: "pos-1", JobID: "job-1"}},
	})

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, KindAuthentication, Kind(err))
	assert.Equal(t, 1, h.gateway.count())
}

func TestReconciler_ExtractionErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty listing", `{"candidates": []}`},
		{"unexpected structure", `{"candidates": {"name": "Alice"}}`},
		{"not json", `<html>captcha</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.listing("job-1", tt.body)

			_, err := h.reconciler(t, "recruiter", "secret").Run(context.Background(), Request{
				ProjectID: "proj-1",
				Jobs:      []Listing{{PositionID: "pos-1", JobID: "job-1"}},
			})

			var extErr *ExtractionError
			require.ErrorAs(t, err, &extErr)
			assert.Equal(t, "job-1", extErr.Locator)
			assert.Equal(t, KindExtraction, Kind(err))
		})
	}
}

func TestReconciler_EarlierListingsPersist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.listing("job-1", aliceAndBob)
	h.listing("job-2", `{"candidates": []}`)

	_, err := h.reconciler(t, "recruiter", "secret").Run(ctx, Request{
		ProjectID: "proj-1",
		Jobs: []Listing{
			{PositionID: "pos-1", JobID: "job-1"},
			{PositionID: "pos-2", JobID: "job-2"},
		},
	})
	assert.Equal(t, KindExtraction, Kind(err))

	list, err := h.store.ListByProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	pos, err := h.store.GetPosition(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, 2, pos.ApplicantsCount, "aggregates recounted for work already done")
}

func TestReconciler_FilterSkips(t *testing.T) {
	h := newHarness(t)
	h.listing("job-1", aliceAndBob)

	resp, err := h.reconciler(t, "recruiter", "secret").Run(context.Background(), Request{
		ProjectID: "proj-1",
		Jobs: []Listing{{
			PositionID: "pos-1",
			JobID:      "job-1",
			Filters:    &Filter{Status: []string{"screen*"}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Imported)
	assert.Equal(t, 1, resp.Skipped)
	assert.Equal(t, "Bob Tran", resp.Jobs[0].Candidates[0].Name)
}

func TestReconciler_JobURL(t *testing.T) {
	t.Run("gateway url carries the session", func(t *testing.T) {
		h := newHarness(t)
		h.listing("job-1", aliceAndBob)
		jobURL := h.server.URL + "/api/jobs/job-1/candidates"

		resp, err := h.reconciler(t, "recruiter", "secret").Run(context.Background(), Request{
			ProjectID: "proj-1",
			Jobs:      []Listing{{PositionID: "pos-1", JobURL: jobURL}},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Imported)
		assert.Equal(t, jobURL, resp.Jobs[0].Locator)
	})

	t.Run("other hosts never see the session", func(t *testing.T) {
		h := newHarness(t)

		var (
			mu   sync.Mutex
			auth []string
		)
		other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			auth = append(auth, r.Header.Get("Authorization"))
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, aliceAndBob)
		}))
		t.Cleanup(other.Close)

		resp, err := h.reconciler(t, "recruiter", "secret").Run(context.Background(), Request{
			ProjectID: "proj-1",
			Jobs:      []Listing{{PositionID: "pos-1", JobURL: other.URL + "/board/77"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Imported)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{""}, auth)
	})
}
