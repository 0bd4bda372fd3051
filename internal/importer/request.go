package importer

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// JobType is the queue job type served by the Reconciler
const JobType = "candidate_import"

var validate = validator.New()

// Request is the payload of an import job
type Request struct {
	ProjectID string    `json:"project_id" validate:"required"`
	Jobs      []Listing `json:"jobs" validate:"required,min=1,dive"`
	Notes     string    `json:"notes,omitempty"`
	Debug     bool      `json:"debug,omitempty"`
}

// Listing points at one external job listing and the position it feeds
type Listing struct {
	PositionID string  `json:"position_id" validate:"required"`
	JobURL     string  `json:"job_url,omitempty" validate:"required_without=JobID,omitempty,url"`
	JobID      string  `json:"job_id,omitempty" validate:"required_without=JobURL"`
	Filters    *Filter `json:"filters,omitempty"`
}

// Locator identifies the listing in responses and errors
func (l Listing) Locator() string {
	if l.JobURL != "" {
		return l.JobURL
	}
	return l.JobID
}

// Validate checks the request shape and filter patterns
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return &ConfigError{Msg: "invalid import request", Err: err}
	}

	for _, l := range r.Jobs {
		if l.Filters == nil {
			continue
		}
		if err := l.Filters.Validate(); err != nil {
			return &ConfigError{Msg: "invalid filters for " + l.Locator(), Err: err}
		}
	}
	return nil
}

// Record is one scraped candidate as returned by a listing source
type Record struct {
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Status     string   `json:"status,omitempty"`
	Stage      string   `json:"stage,omitempty"`
	Location   string   `json:"location,omitempty"`
	ProfileURL string   `json:"profile_url,omitempty"`
	ResumeURL  string   `json:"resume_url,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// label is the free-text stage used for status normalization
func (r Record) label() string {
	if strings.TrimSpace(r.Status) != "" {
		return r.Status
	}
	return r.Stage
}

// url is the profile link, falling back to the resume link
func (r Record) url() string {
	if u := strings.TrimSpace(r.ProfileURL); u != "" {
		return u
	}
	return strings.TrimSpace(r.ResumeURL)
}
