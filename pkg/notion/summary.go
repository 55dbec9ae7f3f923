package notion

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/docsuite/docflow/internal/model"
)

// BuildRunSummary assembles a page create request summarizing a finished
// processing run, parented under the given Notion page.
func BuildRunSummary(parentPageID, runID string, results []model.ProcessingResult) *notionapi.PageCreateRequest {
	title := fmt.Sprintf("Processing run %s (%s)", runID, time.Now().Format("2006-01-02"))

	children := []notionapi.Block{
		&notionapi.Heading2Block{
			BasicBlock: notionapi.BasicBlock{
				Object: notionapi.ObjectTypeBlock,
				Type:   notionapi.BlockTypeHeading2,
			},
			Heading2: notionapi.Heading{
				RichText: []notionapi.RichText{richText(fmt.Sprintf("Results (%d files)", len(results)))},
			},
		},
	}

	for _, r := range results {
		line := fmt.Sprintf("%s [%s]", r.Filename, r.Classification.Category)
		if r.MatchedContractID != "" {
			line += fmt.Sprintf(" matched contract %s", r.MatchedContractID)
		}
		if len(r.Discrepancies) > 0 {
			line += fmt.Sprintf(", %d discrepancies", len(r.Discrepancies))
		}
		if r.ReconciliationNotes != "" {
			line += fmt.Sprintf(": %s", r.ReconciliationNotes)
		}
		children = append(children, &notionapi.BulletedListItemBlock{
			BasicBlock: notionapi.BasicBlock{
				Object: notionapi.ObjectTypeBlock,
				Type:   notionapi.BlockTypeBulletedListItem,
			},
			BulletedListItem: notionapi.ListItem{
				RichText: []notionapi.RichText{richText(line)},
			},
		})
	}

	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(parentPageID),
		},
		Properties: notionapi.Properties{
			"title": notionapi.TitleProperty{
				Type:  notionapi.PropertyTypeTitle,
				Title: []notionapi.RichText{richText(title)},
			},
		},
		Children: children,
	}
}

// PublishRunSummary creates a run summary page and returns its URL.
func PublishRunSummary(ctx context.Context, client Client, parentPageID, runID string, results []model.ProcessingResult) (string, error) {
	page, err := client.CreatePage(ctx, BuildRunSummary(parentPageID, runID, results))
	if err != nil {
		return "", eris.Wrap(err, "notion: publish run summary")
	}
	return page.URL, nil
}

func richText(text string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: text},
	}
}
