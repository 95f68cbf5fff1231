package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/customer-intel/internal/config"
	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/queue"
)

func testIngestConfig() config.IngestConfig {
	return config.IngestConfig{
		FetchTimeoutSecs:  2,
		PollIntervalSecs:  1,
		PollMaxAttempts:   3,
		ChunkMaxWords:     120,
		ChunkOverlapWords: 25,
	}
}

func newTestService(files *mockFiles, gen *mockGen, q *capturingQueue, cfg config.IngestConfig) *Service {
	return NewService(Options{
		Files:  files,
		Gen:    gen,
		Queue:  q,
		Config: cfg,
	})
}

func ingestRequest(url string) model.IngestRequest {
	return model.IngestRequest{
		Domain:      "acme.com",
		URL:         url,
		Fallback:    "Acme expands to Europe with a new plant.",
		StorageArea: "news/acme.com",
		Type:        "news",
		Context: model.BatchContext{
			Domain:     "acme.com",
			LegalName:  "Acme Corp",
			Industries: []string{"manufacturing"},
			Markets:    []string{"US"},
		},
	}
}

func TestHandleIngestFetchesAndSubmitsBatch(t *testing.T) {
	page := "<html><head><title>News</title><script>x()</script></head><body><p>" +
		strings.Repeat("Acme opened a new plant in Europe. ", 30) +
		"</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	files := newMockFiles()
	gen := &mockGen{markdown: "unused"}
	q := &capturingQueue{}
	s := newTestService(files, gen, q, testIngestConfig())

	err := s.HandleIngest(context.Background(), message(queue.TopicIngest, ingestRequest(srv.URL)))
	require.NoError(t, err)

	// Fetched content was chunked and uploaded; no fallback generation.
	assert.Equal(t, 0, gen.calls)
	assert.NotEmpty(t, files.uploads)
	assert.Contains(t, files.uploads[0], "acme.com-news-")

	checks := q.byTopic(queue.TopicBatchCheck)
	require.Len(t, checks, 1)
	var check model.BatchCheckRequest
	require.NoError(t, json.Unmarshal(checks[0].Body, &check))
	assert.Equal(t, "batch-1", check.BatchID)
	assert.Equal(t, "news/acme.com", check.StorageAreaName)
	assert.Equal(t, "vs-1", check.StorageAreaID)
	assert.Equal(t, "Acme Corp", check.Context.LegalName)
}

func TestHandleIngestFallsBackWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	files := newMockFiles()
	gen := &mockGen{markdown: "# Acme in Europe\n\n" + strings.Repeat("Expansion detail. ", 20)}
	q := &capturingQueue{}
	s := newTestService(files, gen, q, testIngestConfig())

	err := s.HandleIngest(context.Background(), message(queue.TopicIngest, ingestRequest(srv.URL)))
	require.NoError(t, err)

	assert.Equal(t, 1, gen.calls)
	assert.NotEmpty(t, files.uploads)
	assert.Len(t, q.byTopic(queue.TopicBatchCheck), 1)
}

func TestHandleIngestFallbackGenerationFailureRetries(t *testing.T) {
	files := newMockFiles()
	gen := &mockGen{err: errors.New("model overloaded")}
	q := &capturingQueue{}
	s := newTestService(files, gen, q, testIngestConfig())

	req := ingestRequest("http://127.0.0.1:1/unreachable")
	err := s.HandleIngest(context.Background(), message(queue.TopicIngest, req))
	require.Error(t, err)
	assert.Empty(t, files.uploads)
	assert.Empty(t, q.published)
}

func TestHandleIngestRejectsMalformedBody(t *testing.T) {
	s := newTestService(newMockFiles(), &mockGen{}, &capturingQueue{}, testIngestConfig())

	err := s.HandleIngest(context.Background(), queue.Message{
		Topic: queue.TopicIngest,
		Body:  []byte(`{broken`),
	})
	require.Error(t, err)
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestStripHTML(t *testing.T) {
	html := `<html><head><style>.a{}</style></head><body>
		<nav>menu</nav>
		<p>Hello &amp; welcome.</p>
		<footer>legal</footer>
	</body></html>`
	text := stripHTML(html)
	assert.Contains(t, text, "Hello & welcome.")
	assert.NotContains(t, text, "menu")
	assert.NotContains(t, text, "legal")
	assert.NotContains(t, text, "<p>")
}
