// Package coach analyzes finished call transcripts and produces structured
// sales-coaching feedback: an overall score, per-category scores, and a
// written rationale.
package coach

import (
	"context"
	"fmt"
	"strings"

	"github.com/pitchline-ai/pitchline/internal/call"
	"github.com/pitchline-ai/pitchline/internal/store"
)

// Categories scored by every analysis, in report order.
var Categories = []string{
	"discovery",
	"objection_handling",
	"value_articulation",
	"relationship_building",
	"call_control",
	"closing",
}

// Feedback is the structured result of analyzing one transcript.
type Feedback struct {
	// OverallScore is the 0-10 overall rating.
	OverallScore float64

	// CategoryScores maps each entry of [Categories] to its 0-10 rating.
	// Categories the model omitted are absent.
	CategoryScores map[string]float64

	// Rationale is the model's full written assessment.
	Rationale string
}

// Analyzer produces coaching feedback for call transcripts.
type Analyzer interface {
	// Analyze scores the transcript across all categories.
	Analyze(ctx context.Context, rec store.TranscriptRecord) (Feedback, error)

	// QuickSummary returns a short free-form recap of how the call went.
	QuickSummary(ctx context.Context, rec store.TranscriptRecord) (string, error)
}

// FormatTranscript renders a transcript for inclusion in an analysis prompt.
// The seller is the caller; the persona's lines are labelled with its name.
func FormatTranscript(rec store.TranscriptRecord) string {
	persona := rec.PersonaName
	if persona == "" {
		persona = "Prospect"
	}

	var b strings.Builder
	for _, t := range rec.Turns {
		switch t.Speaker {
		case call.SpeakerCaller:
			fmt.Fprintf(&b, "Seller: %s\n", t.Text)
		case call.SpeakerAgent:
			fmt.Fprintf(&b, "%s: %s\n", persona, t.Text)
		}
	}
	return b.String()
}
