// Package monitoring surfaces pipeline incidents to operators.
package monitoring

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/pkg/notion"
)

// IncidentKind identifies the kind of incident.
type IncidentKind string

const (
	IncidentStageDeadLettered IncidentKind = "stage_dead_lettered"
	IncidentBatchFailed       IncidentKind = "batch_failed"
	IncidentBatchTimedOut     IncidentKind = "batch_timed_out"
)

// Incident is a single operator-visible failure.
type Incident struct {
	Kind    IncidentKind
	Subject string // company domain or batch ID
	Stage   string
	Message string
	Details map[string]string
}

// Reporter delivers incidents to an operator surface.
type Reporter interface {
	Report(ctx context.Context, inc Incident) error
}

// NopReporter discards incidents.
type NopReporter struct{}

func (NopReporter) Report(context.Context, Incident) error { return nil }

// LogReporter writes incidents to the global logger. It is the fallback
// when no operator surface is configured.
type LogReporter struct{}

func (LogReporter) Report(_ context.Context, inc Incident) error {
	zap.L().Warn("pipeline incident",
		zap.String("kind", string(inc.Kind)),
		zap.String("subject", inc.Subject),
		zap.String("stage", inc.Stage),
		zap.String("message", inc.Message),
	)
	return nil
}

// NotionReporter creates one page per incident in an operations database.
type NotionReporter struct {
	client notion.Client
	dbID   string
}

// NewNotionReporter creates a reporter writing to the given database.
func NewNotionReporter(client notion.Client, databaseID string) *NotionReporter {
	return &NotionReporter{client: client, dbID: databaseID}
}

func (r *NotionReporter) Report(ctx context.Context, inc Incident) error {
	now := notionapi.Date(time.Now().UTC())
	title := fmt.Sprintf("[%s] %s", inc.Kind, inc.Subject)

	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: richText(title),
		},
		"Kind": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(inc.Kind)},
		},
		"Stage": notionapi.RichTextProperty{
			RichText: richText(inc.Stage),
		},
		"Message": notionapi.RichTextProperty{
			RichText: richText(inc.Message),
		},
		"Reported": notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &now},
		},
	}
	if len(inc.Details) > 0 {
		props["Details"] = notionapi.RichTextProperty{
			RichText: richText(formatDetails(inc.Details)),
		}
	}

	_, err := r.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(r.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return eris.Wrapf(err, "monitoring: report %s incident for %s", inc.Kind, inc.Subject)
	}
	return nil
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Text: &notionapi.Text{Content: s}},
	}
}

// formatDetails renders details as sorted key=value lines for a text cell.
func formatDetails(details map[string]string) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+details[k])
	}
	return strings.Join(lines, "\n")
}
