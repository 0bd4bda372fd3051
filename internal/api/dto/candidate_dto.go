package dto

import "github.com/cuongbtq/recruitq/internal/candidates"

type ListCandidatesResponse struct {
	ProjectID  string                 `json:"project_id"`
	HiresCount int                    `json:"hires_count"`
	Candidates []candidates.Candidate `json:"candidates"`
}
