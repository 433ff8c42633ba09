package publish

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/pkg/notion"
)

// FeedbackSaver records a grade against a case file.
type FeedbackSaver interface {
	SaveFeedback(ctx context.Context, caseID string, grade model.Grade) (*model.FeedbackGrade, error)
}

// ImportResult summarizes a feedback import.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   []error
}

// ImportFeedback reads graded pages from the case database and saves each
// grade. Pages without a case id or with an unknown grade are skipped.
// Saving is idempotent per case and grade, so re-importing is harmless.
func ImportFeedback(ctx context.Context, c notion.Client, dbID string, saver FeedbackSaver) (ImportResult, error) {
	var res ImportResult

	pages, err := notion.QueryGraded(ctx, c, dbID, PropFeedback)
	if err != nil {
		return res, eris.Wrap(err, "publish: import feedback")
	}

	for _, page := range pages {
		caseID := notion.TextValue(page, PropCaseID)
		grade, err := model.ParseGrade(notion.SelectValue(page, PropFeedback))
		if caseID == "" || err != nil {
			res.Skipped++
			continue
		}
		if _, err := saver.SaveFeedback(ctx, caseID, grade); err != nil {
			res.Errors = append(res.Errors, eris.Wrapf(err, "publish: save feedback for %s", caseID))
			continue
		}
		res.Imported++
	}

	zap.L().Info("publish: feedback imported",
		zap.Int("pages", len(pages)),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}
