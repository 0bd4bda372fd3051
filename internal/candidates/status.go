package candidates

import "strings"

// Canonical candidate statuses
const (
	StatusNew       = "new"
	StatusScreening = "screening"
	StatusInterview = "interview"
	StatusOffer     = "offer"
	StatusHired     = "hired"
	StatusRejected  = "rejected"
	StatusArchived  = "archived"
)

// statusKeywords is checked in order; the first status with a keyword
// contained in the label wins.
var statusKeywords = []struct {
	status   string
	keywords []string
}{
	{StatusHired, []string{"hired", "hire", "onboard", "joined"}},
	{StatusOffer, []string{"offer"}},
	{StatusInterview, []string{"interview", "onsite", "on-site"}},
	{StatusScreening, []string{"screen", "phone", "assessment"}},
	{StatusRejected, []string{"reject", "declin", "not selected", "unsuccessful", "withdr"}},
	{StatusArchived, []string{"archiv", "closed", "on hold"}},
}

// Normalize maps a free-text stage label to a canonical status. Unknown labels
// are lower-cased with spaces replaced by underscores. An empty label yields
// an empty string so callers can keep the current status.
func Normalize(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return ""
	}

	for _, entry := range statusKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(l, kw) {
				return entry.status
			}
		}
	}

	return strings.ReplaceAll(l, " ", "_")
}

// NormalizeForCreate is Normalize with StatusNew for an empty label
func NormalizeForCreate(label string) string {
	if status := Normalize(label); status != "" {
		return status
	}
	return StatusNew
}
