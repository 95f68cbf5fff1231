package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/customer-intel/internal/config"
	"github.com/sells-group/customer-intel/internal/model"
	"github.com/sells-group/customer-intel/internal/monitoring"
	"github.com/sells-group/customer-intel/internal/pipeline"
	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/pkg/filestore"
	"github.com/sells-group/customer-intel/pkg/genai"
)

// maxFetchBytes bounds how much of a source document gets read.
const maxFetchBytes = 512 * 1024

// Service ingests source documents: fetch (or expand the fallback summary),
// chunk, upload, and track the storage-area file batch until it settles.
type Service struct {
	files    filestore.Client
	gen      genai.Client
	queue    queue.Publisher
	reporter monitoring.Reporter
	cfg      config.IngestConfig

	cache   *storeCache
	chunker *Chunker
	http    *http.Client
}

// Options carries the ingestion dependencies.
type Options struct {
	Files    filestore.Client
	Gen      genai.Client
	Queue    queue.Publisher
	Reporter monitoring.Reporter
	Config   config.IngestConfig
	// HTTPClient overrides the fetch client in tests.
	HTTPClient *http.Client
}

// NewService creates the ingestion service.
func NewService(opts Options) *Service {
	s := &Service{
		files:    opts.Files,
		gen:      opts.Gen,
		queue:    opts.Queue,
		reporter: opts.Reporter,
		cfg:      opts.Config,
		cache:    newStoreCache(opts.Files),
		chunker:  NewChunker(opts.Config.ChunkMaxWords, opts.Config.ChunkOverlapWords),
		http:     opts.HTTPClient,
	}
	if s.reporter == nil {
		s.reporter = monitoring.LogReporter{}
	}
	if s.http == nil {
		timeout := time.Duration(opts.Config.FetchTimeoutSecs) * time.Second
		if timeout <= 0 {
			timeout = 8 * time.Second
		}
		s.http = &http.Client{Timeout: timeout}
	}
	return s
}

// HandleIngest fetches one source document, falls back to summary expansion
// when the source is unreachable, and submits the chunked text as a file
// batch. The batch id goes onto the check topic for polling.
func (s *Service) HandleIngest(ctx context.Context, msg queue.Message) error {
	var req model.IngestRequest
	if err := decode(msg, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	text := s.fetchText(ctx, req.URL)
	if text == "" {
		var err error
		text, err = s.expandFallback(ctx, req)
		if err != nil {
			return err
		}
	}

	chunks := s.chunker.Chunk(text)
	if len(chunks) == 0 {
		zap.L().Warn("nothing to ingest",
			zap.String("domain", req.Domain),
			zap.String("url", req.URL),
		)
		return nil
	}

	storeID, err := s.cache.resolve(ctx, req.StorageArea)
	if err != nil {
		return err
	}

	fileIDs := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		name := fmt.Sprintf("%s-%s-%03d.md", req.Domain, req.Type, i)
		fileID, err := s.files.UploadFile(ctx, name, []byte(chunk))
		if err != nil {
			return err
		}
		fileIDs = append(fileIDs, fileID)
	}

	batch, err := s.files.CreateFileBatch(ctx, storeID, fileIDs)
	if err != nil {
		return err
	}
	zap.L().Info("ingestion batch submitted",
		zap.String("domain", req.Domain),
		zap.String("storage_area", req.StorageArea),
		zap.String("batch", batch.ID),
		zap.Int("chunks", len(chunks)),
	)

	return s.queue.Publish(ctx, queue.TopicBatchCheck, model.BatchCheckRequest{
		StorageAreaID:   storeID,
		StorageAreaName: req.StorageArea,
		BatchID:         batch.ID,
		Context:         req.Context,
	})
}

// fetchText fetches a source URL and strips it to plaintext. Any failure
// returns ""; ingestion falls back to the summary.
func (s *Service) fetchText(ctx context.Context, url string) string {
	if url == "" {
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ResearchBot/1.0)")

	resp, err := s.http.Do(req)
	if err != nil {
		zap.L().Debug("source fetch failed", zap.String("url", url), zap.Error(err))
		return ""
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return ""
	}

	text := body
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		text = []byte(stripHTML(string(body)))
	}
	if len(text) < 100 {
		return ""
	}
	return string(text)
}

// expandFallback turns the carried summary into a markdown brief standing in
// for the unreachable source.
func (s *Service) expandFallback(ctx context.Context, req model.IngestRequest) (string, error) {
	zap.L().Info("source unavailable, expanding fallback summary",
		zap.String("domain", req.Domain),
		zap.String("url", req.URL),
	)
	var out struct {
		Markdown string `json:"markdown"`
	}
	res, err := s.gen.GenerateObject(ctx, genai.Request{
		Instructions: pipeline.FallbackMarkdownRole,
		Input:        pipeline.FallbackMarkdownPrompt(req.Domain, req.Type, req.URL, req.Fallback),
		Schema:       pipeline.FallbackMarkdownSchema(),
	}, &out)
	if err != nil {
		return "", eris.Wrapf(err, "ingest: expand fallback for %s", req.Domain)
	}
	res.Usage.LogCost(res.Model, "ingest-fallback")
	if strings.TrimSpace(out.Markdown) == "" {
		// Better a short document than none.
		return req.Fallback, nil
	}
	return out.Markdown, nil
}

// decode mirrors the stage-handler convention: malformed payloads are
// invalid input, never retried.
func decode(msg queue.Message, v any) error {
	if err := msg.Decode(v); err != nil {
		return &model.ValidationError{
			Subject: string(msg.Topic),
			Fields:  []model.FieldError{{Field: "body", Reason: "malformed JSON"}},
		}
	}
	return nil
}

var (
	blockTagRe = map[string]*regexp.Regexp{}
	htmlTagRe  = regexp.MustCompile(`<[^>]+>`)
	spaceRe    = regexp.MustCompile(`[ \t]+`)
	newlineRe  = regexp.MustCompile(`\n{3,}`)
)

func init() {
	for _, tag := range []string{"script", "style", "nav", "footer"} {
		blockTagRe[tag] = regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
	}
}

// stripHTML removes script/style/nav/footer blocks, strips tags, decodes
// common entities, and collapses whitespace.
func stripHTML(html string) string {
	for _, re := range blockTagRe {
		html = re.ReplaceAllString(html, "")
	}
	html = htmlTagRe.ReplaceAllString(html, " ")

	html = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	).Replace(html)

	html = spaceRe.ReplaceAllString(html, " ")
	html = newlineRe.ReplaceAllString(html, "\n\n")
	return strings.TrimSpace(html)
}
