// Package importer merges scraped candidate listings into the candidate set.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/cuongbtq/recruitq/internal/candidates"
	"github.com/cuongbtq/recruitq/internal/jobs"
)

// CandidateStore is the persistence the reconciler needs
type CandidateStore interface {
	GetProject(ctx context.Context, id string) (*candidates.Project, error)
	GetPosition(ctx context.Context, id string) (*candidates.Position, error)
	FindByEmail(ctx context.Context, projectID, email string) (*candidates.Candidate, error)
	FindBySourceURL(ctx context.Context, projectID, source, url string) (*candidates.Candidate, error)
	FindByName(ctx context.Context, projectID, positionID, name string) (*candidates.Candidate, error)
	Insert(ctx context.Context, c *candidates.Candidate) error
	Update(ctx context.Context, c *candidates.Candidate) error
	RecountHires(ctx context.Context, projectID string) (int, error)
	RecountApplicants(ctx context.Context, positionID string) (int, error)
}

// Outcome classifies what happened to one scraped record
type Outcome string

const (
	OutcomeImported  Outcome = "imported"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
)

// Counts tallies outcomes
type Counts struct {
	Imported  int `json:"imported"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Unchanged int `json:"unchanged"`
}

func (c *Counts) add(o Outcome, n int) {
	switch o {
	case OutcomeImported:
		c.Imported += n
	case OutcomeUpdated:
		c.Updated += n
	case OutcomeUnchanged:
		c.Unchanged += n
	case OutcomeSkipped:
		c.Skipped += n
	}
}

// CandidateResult is the outcome for one scraped record
type CandidateResult struct {
	CandidateID string  `json:"candidate_id,omitempty"`
	Name        string  `json:"name"`
	Outcome     Outcome `json:"outcome"`
	MatchedBy   string  `json:"matched_by,omitempty"`
}

// ListingResult is the per-listing breakdown
type ListingResult struct {
	PositionID string `json:"position_id"`
	Locator    string `json:"locator"`
	Counts
	Candidates []CandidateResult `json:"candidates"`
}

// Aggregates are the recomputed derived counts after a run
type Aggregates struct {
	HiresCount      map[string]int `json:"hires_count"`
	ApplicantsCount map[string]int `json:"applicants_count"`
}

// Response is the result stored on a completed import job
type Response struct {
	ProjectID string `json:"project_id"`
	Counts
	Jobs       []ListingResult `json:"jobs"`
	Aggregates Aggregates      `json:"aggregates"`
	Notes      string          `json:"notes,omitempty"`
}

// Reconciler matches scraped records against stored candidates
type Reconciler struct {
	store  CandidateStore
	source Source
	marker string
	logger *slog.Logger
}

// NewReconciler creates a reconciler. sourceName yields the marker tag
// "<sourceName>_import" used as both tag and candidate source.
func NewReconciler(store CandidateStore, source Source, sourceName string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		source: source,
		marker: strings.ToLower(sourceName) + "_import",
		logger: logger.With("component", "importer"),
	}
}

// Marker is the tag stamped on every imported candidate
func (r *Reconciler) Marker() string {
	return r.marker
}

// Handle runs an import job. It satisfies jobs.Func.
func (r *Reconciler) Handle(ctx context.Context, job *jobs.Job) (any, error) {
	var req Request
	if err := job.Request.Decode(&req); err != nil {
		return nil, &ConfigError{Msg: "malformed import request", Err: err}
	}
	return r.Run(ctx, req)
}

// Run validates, logs in, then reconciles each listing in order. Writes made
// for earlier listings persist when a later listing fails; aggregates for
// everything touched so far are recounted either way.
func (r *Reconciler) Run(ctx context.Context, req Request) (*Response, error) {
	if err := r.preflight(ctx, &req); err != nil {
		return nil, err
	}

	if err := r.source.Login(ctx); err != nil {
		return nil, err
	}

	resp := &Response{ProjectID: req.ProjectID, Notes: req.Notes, Jobs: []ListingResult{}}
	touched := newTouched(req.ProjectID)

	runErr := r.reconcileAll(ctx, &req, resp, touched)

	aggregates, err := r.recount(ctx, touched)
	if err != nil {
		if runErr != nil {
			return nil, errors.Join(runErr, err)
		}
		return nil, err
	}
	if runErr != nil {
		return nil, runErr
	}

	resp.Aggregates = aggregates
	r.logger.Info("Import finished",
		slog.String("project_id", req.ProjectID),
		slog.Int("imported", resp.Imported),
		slog.Int("updated", resp.Updated),
		slog.Int("unchanged", resp.Unchanged),
		slog.Int("skipped", resp.Skipped),
	)
	return resp, nil
}

// preflight raises every configuration error before any external call
func (r *Reconciler) preflight(ctx context.Context, req *Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := r.source.CheckConfig(); err != nil {
		return err
	}

	if _, err := r.store.GetProject(ctx, req.ProjectID); err != nil {
		if errors.Is(err, candidates.ErrNotFound) {
			return &ConfigError{Msg: fmt.Sprintf("project %s does not exist", req.ProjectID)}
		}
		return err
	}

	for _, l := range req.Jobs {
		pos, err := r.store.GetPosition(ctx, l.PositionID)
		if errors.Is(err, candidates.ErrNotFound) {
			return &ConfigError{Msg: fmt.Sprintf("position %s does not exist", l.PositionID)}
		}
		if err != nil {
			return err
		}
		if pos.ProjectID != req.ProjectID {
			return &ConfigError{Msg: fmt.Sprintf("position %s does not belong to project %s", l.PositionID, req.ProjectID)}
		}
	}
	return nil
}

func (r *Reconciler) reconcileAll(ctx context.Context, req *Request, resp *Response, touched *touched) error {
	for _, listing := range req.Jobs {
		records, err := r.source.FetchListing(ctx, listing)
		if err != nil {
			return err
		}

		kept, excluded := listing.Filters.Apply(records)
		result := ListingResult{
			PositionID: listing.PositionID,
			Locator:    listing.Locator(),
			Candidates: make([]CandidateResult, 0, len(kept)),
		}
		result.add(OutcomeSkipped, excluded)
		touched.positions[listing.PositionID] = struct{}{}

		for _, rec := range kept {
			cr, err := r.reconcile(ctx, req.ProjectID, listing.PositionID, rec, touched)
			if err != nil {
				return fmt.Errorf("failed to reconcile %q from %s: %w", rec.Name, listing.Locator(), err)
			}
			if !req.Debug {
				cr.MatchedBy = ""
			}
			result.add(cr.Outcome, 1)
			result.Candidates = append(result.Candidates, cr)
		}

		resp.Imported += result.Imported
		resp.Updated += result.Updated
		resp.Unchanged += result.Unchanged
		resp.Skipped += result.Skipped
		resp.Jobs = append(resp.Jobs, result)

		r.logger.Debug("Listing reconciled",
			slog.String("locator", result.Locator),
			slog.Int("records", len(records)),
			slog.Int("imported", result.Imported),
			slog.Int("updated", result.Updated),
		)
	}
	return nil
}

func (r *Reconciler) reconcile(ctx context.Context, projectID, positionID string, rec Record, touched *touched) (CandidateResult, error) {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return CandidateResult{Outcome: OutcomeSkipped}, nil
	}

	existing, matchedBy, err := r.match(ctx, projectID, positionID, name, rec)
	if err != nil {
		return CandidateResult{}, err
	}

	if existing == nil {
		c := r.newCandidate(projectID, positionID, name, rec)
		if err := r.store.Insert(ctx, c); err != nil {
			return CandidateResult{}, err
		}
		return CandidateResult{CandidateID: c.ID, Name: name, Outcome: OutcomeImported}, nil
	}

	if existing.PositionID != "" {
		touched.positions[existing.PositionID] = struct{}{}
	}

	if !r.merge(existing, rec) {
		return CandidateResult{CandidateID: existing.ID, Name: name, Outcome: OutcomeUnchanged, MatchedBy: matchedBy}, nil
	}
	if err := r.store.Update(ctx, existing); err != nil {
		return CandidateResult{}, err
	}
	return CandidateResult{CandidateID: existing.ID, Name: name, Outcome: OutcomeUpdated, MatchedBy: matchedBy}, nil
}

// match tries email, then (marker, profile url), then (position, name)
func (r *Reconciler) match(ctx context.Context, projectID, positionID, name string, rec Record) (*candidates.Candidate, string, error) {
	strategies := []struct {
		name string
		find func() (*candidates.Candidate, error)
	}{
		{"email", func() (*candidates.Candidate, error) {
			return r.store.FindByEmail(ctx, projectID, strings.TrimSpace(rec.Email))
		}},
		{"source_url", func() (*candidates.Candidate, error) {
			return r.store.FindBySourceURL(ctx, projectID, r.marker, rec.url())
		}},
		{"name", func() (*candidates.Candidate, error) {
			return r.store.FindByName(ctx, projectID, positionID, name)
		}},
	}

	for _, s := range strategies {
		c, err := s.find()
		if errors.Is(err, candidates.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return c, s.name, nil
	}
	return nil, "", nil
}

// merge applies scraped values onto c and reports whether anything changed
func (r *Reconciler) merge(c *candidates.Candidate, rec Record) bool {
	changed := false

	if status := candidates.Normalize(rec.label()); status != "" && status != c.Status {
		c.Status = status
		changed = true
	}

	for _, f := range []struct {
		dst *string
		src string
	}{
		{&c.Email, rec.Email},
		{&c.Phone, rec.Phone},
		{&c.ResumeURL, rec.url()},
	} {
		if v := strings.TrimSpace(f.src); v != "" && v != *f.dst {
			*f.dst = v
			changed = true
		}
	}

	merged := lo.Union(c.Tags, r.tagsFor(rec))
	if len(lo.Without(merged, c.Tags...)) > 0 {
		c.Tags = merged
		changed = true
	}
	return changed
}

func (r *Reconciler) newCandidate(projectID, positionID, name string, rec Record) *candidates.Candidate {
	return &candidates.Candidate{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		PositionID: positionID,
		Name:       name,
		Email:      strings.TrimSpace(rec.Email),
		Phone:      strings.TrimSpace(rec.Phone),
		Status:     candidates.NormalizeForCreate(rec.label()),
		ResumeURL:  rec.url(),
		Location:   strings.TrimSpace(rec.Location),
		Tags:       r.tagsFor(rec),
		Source:     r.marker,
	}
}

// tagsFor is the marker followed by the scraped tag hints, deduplicated
func (r *Reconciler) tagsFor(rec Record) candidates.Tags {
	hints := lo.FilterMap(rec.Tags, func(tag string, _ int) (string, bool) {
		tag = strings.ToLower(strings.TrimSpace(tag))
		return tag, tag != ""
	})
	return lo.Uniq(append([]string{r.marker}, hints...))
}

type touched struct {
	projects  map[string]struct{}
	positions map[string]struct{}
}

func newTouched(projectID string) *touched {
	return &touched{
		projects:  map[string]struct{}{projectID: {}},
		positions: map[string]struct{}{},
	}
}

func (r *Reconciler) recount(ctx context.Context, t *touched) (Aggregates, error) {
	agg := Aggregates{HiresCount: map[string]int{}, ApplicantsCount: map[string]int{}}

	for _, id := range lo.Keys(t.projects) {
		n, err := r.store.RecountHires(ctx, id)
		if err != nil {
			return agg, fmt.Errorf("failed to recount hires for %s: %w", id, err)
		}
		agg.HiresCount[id] = n
	}
	for _, id := range lo.Keys(t.positions) {
		n, err := r.store.RecountApplicants(ctx, id)
		if err != nil {
			return agg, fmt.Errorf("failed to recount applicants for %s: %w", id, err)
		}
		agg.ApplicantsCount[id] = n
	}
	return agg, nil
}

// Decode reads an import response stored on a job
func Decode(job *jobs.Job) (*Response, error) {
	if len(job.Response) == 0 {
		return nil, fmt.Errorf("job %s has no response", job.ID)
	}
	var resp Response
	if err := json.Unmarshal(job.Response, &resp); err != nil {
		return nil, fmt.Errorf("job %s: invalid import response: %w", job.ID, err)
	}
	return &resp, nil
}
