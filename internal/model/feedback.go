package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Grade is a human judgment on a published lead.
type Grade string

const (
	GradeRelevant   Grade = "Relevant"
	GradePartial    Grade = "Partial"
	GradeIrrelevant Grade = "Irrelevant"
)

// ParseGrade accepts the English grades and the Norwegian aliases used by
// the grading links ("Delvis", "Ikke").
func ParseGrade(s string) (Grade, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "relevant":
		return GradeRelevant, nil
	case "partial", "delvis", "delvis relevant":
		return GradePartial, nil
	case "irrelevant", "ikke", "ikke relevant":
		return GradeIrrelevant, nil
	}
	return "", eris.Errorf("model: unknown grade %q", s)
}

// FeedbackGrade links a grade to a case file and its source type.
type FeedbackGrade struct {
	ID          string    `json:"id"`
	CaseFileID  string    `json:"case_file_id"`
	CompanyName string    `json:"company_name,omitempty"`
	Trigger     Trigger   `json:"trigger,omitempty"`
	SourceType  string    `json:"source_type"`
	Grade       Grade     `json:"grade"`
	GradedAt    time.Time `json:"graded_at"`
}
