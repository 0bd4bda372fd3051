package importer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_Apply(t *testing.T) {
	records := []Record{
		{Name: "Alice", Status: "Interview", Location: "Hanoi, Vietnam", Tags: []string{"golang"}},
		{Name: "Bob", Stage: "Phone Screen", Location: "Ho Chi Minh City", Tags: []string{"java"}},
		{Name: "Carol", Location: "Hanoi", Tags: nil},
	}

	tests := []struct {
		name    string
		filter  *Filter
		want    []string
		skipped int
	}{
		{"nil filter keeps all", nil, []string{"Alice", "Bob", "Carol"}, 0},
		{"status glob", &Filter{Status: []string{"interview", "screen*"}}, []string{"Alice", "Bob"}, 1},
		{"empty status is new", &Filter{Status: []string{"new"}}, []string{"Carol"}, 2},
		{"location is case-insensitive", &Filter{Location: []string{"HANOI*"}}, []string{"Alice", "Carol"}, 1},
		{"tag glob", &Filter{Tags: []string{"go*"}}, []string{"Alice"}, 2},
		{"limit", &Filter{Limit: 2}, []string{"Alice", "Bob"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, skipped := tt.filter.Apply(records)
			names := make([]string, 0, len(kept))
			for _, r := range kept {
				names = append(names, r.Name)
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, tt.skipped, skipped)
		})
	}
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"job id", Request{ProjectID: "p", Jobs: []Listing{{PositionID: "pos", JobID: "123"}}}, false},
		{"job url", Request{ProjectID: "p", Jobs: []Listing{{PositionID: "pos", JobURL: "https://jobs.example.com/123"}}}, false},
		{"missing project", Request{Jobs: []Listing{{PositionID: "pos", JobID: "123"}}}, true},
		{"missing locator", Request{ProjectID: "p", Jobs: []Listing{{PositionID: "pos"}}}, true},
		{"malformed url", Request{ProjectID: "p", Jobs: []Listing{{PositionID: "pos", JobURL: "not a url"}}}, true},
		{"missing position", Request{ProjectID: "p", Jobs: []Listing{{JobID: "123"}}}, true},
		{"negative limit", Request{ProjectID: "p", Jobs: []Listing{{PositionID: "pos", JobID: "1", Filters: &Filter{Limit: -1}}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Equal(t, KindConfiguration, Kind(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{&ConfigError{Msg: "x"}, KindConfiguration},
		{fmt.Errorf("wrapped: %w", &AuthError{Msg: "x"}), KindAuthentication},
		{&ExtractionError{Locator: "job-1", Msg: "x"}, KindExtraction},
		{errors.New("boom"), KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestRecord_URL(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{"profile wins", Record{ProfileURL: " https://p.example/a ", ResumeURL: "https://r.example/a"}, "https://p.example/a"},
		{"blank profile falls back to resume", Record{ProfileURL: "   ", ResumeURL: "https://r.example/a"}, "https://r.example/a"},
		{"neither", Record{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.url())
		})
	}
}
