package server

import (
	"time"

	"github.com/eternisai/titlegen/internal/title_generation"
)

// GenerateTitlesRequest selects documents by vault-relative path.
type GenerateTitlesRequest struct {
	Paths []string `json:"paths" binding:"required,min=1,dive,required"`
}

// OutcomeResponse is the result of one document.
type OutcomeResponse struct {
	Path    string `json:"path,omitempty"`
	NewPath string `json:"newPath,omitempty"`
	Title   string `json:"title,omitempty"`
	RunID   string `json:"runId,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

type GenerateTitlesResponse struct {
	Results   []OutcomeResponse `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
}

type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

func newOutcomeResponse(out title_generation.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		Path:    out.Document.Path,
		NewPath: out.NewPath,
		Title:   out.Title,
		RunID:   out.RunID,
		Skipped: out.Skipped,
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
		resp.Kind = string(title_generation.KindOf(out.Err))
	}
	return resp
}

func newGenerateTitlesResponse(outcomes []title_generation.Outcome) GenerateTitlesResponse {
	resp := GenerateTitlesResponse{Results: make([]OutcomeResponse, 0, len(outcomes))}
	for _, out := range outcomes {
		resp.Results = append(resp.Results, newOutcomeResponse(out))
		switch {
		case out.Skipped:
			resp.Skipped++
		case out.Err != nil:
			resp.Failed++
		default:
			resp.Succeeded++
		}
	}
	return resp
}
