// Package publish writes qualified case files to the Notion case database
// and reads grades back from it.
package publish

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/pkg/notion"
)

// ChunkSize is the most pages created per batch.
const ChunkSize = 10

// Property names of the case database.
const (
	PropCompany    = "Company"
	PropCaseID     = "Case ID"
	PropOrgNumber  = "Org.nr"
	PropTrigger    = "Trigger"
	PropRole       = "Role"
	PropStars      = "Stars"
	PropConfidence = "Confidence"
	PropScores     = "Scores"
	PropWhyNow     = "Why now"
	PropSituation  = "Situation"
	PropRationale  = "Rationale"
	PropReasoning  = "Reasoning"
	PropSources    = "Sources"
	PropQualified  = "Qualified"
	PropFeedback   = "Feedback"
)

// PageRecorder stores the Notion page id of a case file.
type PageRecorder interface {
	SetNotionPage(ctx context.Context, caseID, pageID string) error
}

// Publisher creates one Notion page per qualified case file.
type Publisher struct {
	client      notion.Client
	dbID        string
	pages       PageRecorder
	mode        model.Mode
	concurrency int
	log         *zap.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithConcurrency caps concurrent page creations within a chunk.
func WithConcurrency(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Publisher) { p.log = l }
}

// New creates a Publisher for the given database.
func New(client notion.Client, dbID string, pages PageRecorder, mode model.Mode, opts ...Option) *Publisher {
	p := &Publisher{
		client:      client,
		dbID:        dbID,
		pages:       pages,
		mode:        mode,
		concurrency: 3,
		log:         zap.L(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Result summarizes a publication pass.
type Result struct {
	Published int
	Skipped   int
	Errors    []error
}

// Publish creates pages for qualified case files that have none yet and
// records the page id on each. Failures are per item; the page id is set
// on the slice element even when recording it fails.
func (p *Publisher) Publish(ctx context.Context, cfs []model.CaseFile) Result {
	var res Result
	var todo []int
	for i := range cfs {
		if cfs[i].Status != model.CaseStatusQualified || cfs[i].NotionPageID != "" {
			res.Skipped++
			continue
		}
		todo = append(todo, i)
	}

	var mu sync.Mutex
	for start := 0; start < len(todo); start += ChunkSize {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, eris.Wrap(err, "publish: cancelled"))
			break
		}
		chunk := todo[start:min(start+ChunkSize, len(todo))]

		g := new(errgroup.Group)
		g.SetLimit(p.concurrency)
		for _, i := range chunk {
			cf := &cfs[i]
			g.Go(func() error {
				pageID, err := p.publishOne(ctx, cf)
				mu.Lock()
				defer mu.Unlock()
				if pageID != "" {
					res.Published++
				}
				if err != nil {
					res.Errors = append(res.Errors, err)
					p.log.Warn("publish: case file failed",
						zap.String("case_id", cf.ID),
						zap.String("company", cf.CompanyName),
						zap.Error(err),
					)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return res
}

func (p *Publisher) publishOne(ctx context.Context, cf *model.CaseFile) (string, error) {
	page, err := p.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(p.dbID),
		},
		Properties: Properties(*cf, p.mode),
	})
	if err != nil {
		return "", eris.Wrapf(err, "publish: create page for %s", cf.CompanyName)
	}
	pageID := string(page.ID)
	cf.NotionPageID = pageID
	if p.pages != nil {
		if err := p.pages.SetNotionPage(ctx, cf.ID, pageID); err != nil {
			return pageID, eris.Wrapf(err, "publish: record page for %s", cf.ID)
		}
	}
	return pageID, nil
}

// Properties renders a case file as page properties. Production pages show
// stars only; test pages add the dimension scores and the reasoning.
func Properties(cf model.CaseFile, mode model.Mode) notionapi.Properties {
	props := notionapi.Properties{
		PropCompany: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: notion.RichText(cf.CompanyName),
		},
		PropCaseID:    text(cf.ID),
		PropOrgNumber: text(cf.OrgNumber),
		PropTrigger:   selectOf(string(cf.Trigger)),
		PropRole:      selectOf(string(cf.SuggestedRole)),
		PropStars:     selectOf(StarLabel(cf.Stars)),
		PropWhyNow:    text(cf.WhyNow),
		PropSituation: text(cf.SituationSummary),
		PropRationale: text(cf.Rationale),
		PropSources:   text(strings.Join(cf.SourceTypes, ", ")),
	}
	if cf.QualifiedAt != nil {
		d := notionapi.Date(*cf.QualifiedAt)
		props[PropQualified] = notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &d},
		}
	}
	if mode == model.ModeTest {
		props[PropConfidence] = notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: cf.Confidence}
		props[PropScores] = text(fmt.Sprintf("E=%.2f W=%.2f V=%.2f R=%.2f C=%.2f",
			cf.Scores.E, cf.Scores.W, cf.Scores.V, cf.Scores.R, cf.Confidence))
		props[PropReasoning] = text(cf.Reasoning)
	}
	return props
}

// StarLabel renders a star rating.
func StarLabel(stars int) string {
	if stars <= 0 {
		return "-"
	}
	return strings.Repeat("★", stars)
}

func text(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: notion.RichText(s)}
}

func selectOf(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: name}}
}
