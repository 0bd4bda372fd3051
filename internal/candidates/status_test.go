package candidates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Hired", StatusHired},
		{"Accepted Offer", StatusOffer},
		{"Offer extended", StatusOffer},
		{"phone screen", StatusScreening},
		{"Phone Interview", StatusInterview},
		{"  INTERVIEW  ", StatusInterview},
		{"Onboarding", StatusHired},
		{"Rejected after onsite", StatusInterview},
		{"Candidate declined", StatusRejected},
		{"Archived", StatusArchived},
		{"Talent Pool", "talent_pool"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.label))
		})
	}
}

func TestNormalizeForCreate(t *testing.T) {
	assert.Equal(t, StatusNew, NormalizeForCreate(""))
	assert.Equal(t, StatusHired, NormalizeForCreate("Hired"))
	assert.Equal(t, "sourced", NormalizeForCreate("Sourced"))
}
