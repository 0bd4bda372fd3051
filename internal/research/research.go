// Package research produces market research reports for open positions.
package research

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/cuongbtq/recruitq/internal/candidates"
	"github.com/cuongbtq/recruitq/internal/jobs"
)

// JobType is the queue job type for a research refresh
const JobType = "market_research.refresh"

// ErrPositionNotFound is returned when refreshing an unknown position
var ErrPositionNotFound = errors.New("position not found")

// PositionReader loads positions
type PositionReader interface {
	GetPosition(ctx context.Context, id string) (*candidates.Position, error)
}

// Submitter records research jobs
type Submitter interface {
	// SubmitUnique reports true when an in-flight job was reused
	SubmitUnique(ctx context.Context, jobType string, request any, refs jobs.Refs) (*jobs.Job, bool, error)
}

// Request is the payload of a research job
type Request struct {
	PositionID string `json:"position_id"`
}

// SalaryBand is a yearly range in Currency
type SalaryBand struct {
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	Currency string `json:"currency"`
}

// Report is the response of a completed research job
type Report struct {
	PositionID string     `json:"position_id"`
	Title      string     `json:"title"`
	Location   string     `json:"location,omitempty"`
	Seniority  string     `json:"seniority"`
	SalaryBand SalaryBand `json:"salary_band"`
	Demand     string     `json:"demand"`
	TalentPool int        `json:"talent_pool"`
}

var seniority = []struct {
	level      string
	keywords   []string
	multiplier int
}{
	{"principal", []string{"principal", "staff", "architect"}, 3},
	{"senior", []string{"senior", "sr.", "lead"}, 2},
	{"junior", []string{"junior", "jr.", "intern", "graduate"}, 1},
}

// Service submits refreshes, at most one in flight per position
type Service struct {
	submitter Submitter
	positions PositionReader
	logger    *slog.Logger
}

func NewService(submitter Submitter, positions PositionReader, logger *slog.Logger) *Service {
	return &Service{
		submitter: submitter,
		positions: positions,
		logger:    logger.With("component", "research"),
	}
}

// Refresh returns the in-flight job for the position or submits a new one.
// The boolean reports whether a new job was created.
func (s *Service) Refresh(ctx context.Context, positionID, userID string) (*jobs.Job, bool, error) {
	pos, err := s.positions.GetPosition(ctx, positionID)
	if errors.Is(err, candidates.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: %s", ErrPositionNotFound, positionID)
	}
	if err != nil {
		return nil, false, err
	}

	job, reused, err := s.submitter.SubmitUnique(ctx, JobType, Request{PositionID: pos.ID}, jobs.Refs{
		UserID:     userID,
		ProjectID:  pos.ProjectID,
		PositionID: pos.ID,
	})
	if err != nil {
		return nil, false, err
	}
	if reused {
		s.logger.Info("Research already in flight",
			slog.String("position_id", pos.ID),
			slog.String("job_id", job.ID),
		)
	}
	return job, !reused, nil
}

// Handle runs a research job. It satisfies jobs.Func.
func (s *Service) Handle(ctx context.Context, job *jobs.Job) (any, error) {
	var req Request
	if err := job.Request.Decode(&req); err != nil {
		return nil, fmt.Errorf("malformed research request: %w", err)
	}
	if req.PositionID == "" {
		req.PositionID = job.PositionID
	}

	pos, err := s.positions.GetPosition(ctx, req.PositionID)
	if errors.Is(err, candidates.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, req.PositionID)
	}
	if err != nil {
		return nil, err
	}
	return Build(pos), nil
}

// Build derives a report from the position alone, so the same position
// always yields the same report.
func Build(pos *candidates.Position) Report {
	title := strings.ToLower(pos.Title)

	level, multiplier := "mid", 0
	for _, s := range seniority {
		if lo.SomeBy(s.keywords, func(k string) bool { return strings.Contains(title, k) }) {
			level, multiplier = s.level, s.multiplier
			break
		}
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(title + "|" + strings.ToLower(pos.Location)))
	seed := int(h.Sum32() % 1000)

	base := 30000 + seed*20
	switch multiplier {
	case 1:
		base = base * 6 / 10
	case 2:
		base = base * 15 / 10
	case 3:
		base = base * 2
	}

	pool := 50 + seed%450
	demand := "medium"
	switch {
	case pool < 150:
		demand = "high"
	case pool > 350:
		demand = "low"
	}

	return Report{
		PositionID: pos.ID,
		Title:      pos.Title,
		Location:   pos.Location,
		Seniority:  level,
		SalaryBand: SalaryBand{Min: base, Max: base + base/4, Currency: "USD"},
		Demand:     demand,
		TalentPool: pool,
	}
}
