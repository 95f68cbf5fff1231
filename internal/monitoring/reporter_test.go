package monitoring

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotion struct {
	created []*notionapi.PageCreateRequest
	err     error
}

func (f *fakeNotion) CreatePage(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, req)
	return &notionapi.Page{ID: "page-1"}, nil
}

func (f *fakeNotion) UpdatePage(context.Context, string, *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	return &notionapi.Page{}, nil
}

func TestNotionReporterCreatesIncidentPage(t *testing.T) {
	fake := &fakeNotion{}
	r := NewNotionReporter(fake, "db-1")

	err := r.Report(context.Background(), Incident{
		Kind:    IncidentBatchTimedOut,
		Subject: "acme.com",
		Stage:   "batch-check",
		Message: "still in progress after 30 checks",
		Details: map[string]string{"batchId": "batch-1", "storageArea": "news/acme.com"},
	})
	require.NoError(t, err)
	require.Len(t, fake.created, 1)

	req := fake.created[0]
	assert.Equal(t, notionapi.DatabaseID("db-1"), req.Parent.DatabaseID)

	title, ok := req.Properties["Name"].(notionapi.TitleProperty)
	require.True(t, ok)
	require.NotEmpty(t, title.Title)
	assert.Contains(t, title.Title[0].Text.Content, "batch_timed_out")
	assert.Contains(t, title.Title[0].Text.Content, "acme.com")

	details, ok := req.Properties["Details"].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Equal(t, "batchId=batch-1\nstorageArea=news/acme.com", details.RichText[0].Text.Content)
}

func TestNotionReporterWrapsAPIErrors(t *testing.T) {
	r := NewNotionReporter(&fakeNotion{err: assert.AnError}, "db-1")

	err := r.Report(context.Background(), Incident{Kind: IncidentBatchFailed, Subject: "acme.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_failed")
}

func TestFormatDetailsSortsKeys(t *testing.T) {
	out := formatDetails(map[string]string{"z": "1", "a": "2"})
	assert.Equal(t, "a=2\nz=1", out)
}

func TestLogReporterNeverFails(t *testing.T) {
	assert.NoError(t, LogReporter{}.Report(context.Background(), Incident{Kind: IncidentStageDeadLettered}))
	assert.NoError(t, NopReporter{}.Report(context.Background(), Incident{}))
}
