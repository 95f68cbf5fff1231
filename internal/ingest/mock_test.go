package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/pkg/filestore"
	"github.com/sells-group/customer-intel/pkg/genai"
)

// mockFiles implements filestore.Client for ingestion tests.
type mockFiles struct {
	mu sync.Mutex

	stores      map[string]string // name → id
	ensureCalls int
	ensureErr   error

	uploads     []string // filenames in upload order
	uploadSizes []int

	batches      map[string]*filestore.Batch // batch id → state
	batchCounter int
	// statusSequence overrides the status returned by successive
	// GetFileBatch calls; the last entry repeats.
	statusSequence []filestore.BatchStatus
	statusCalls    int
	getErr         error
}

func newMockFiles() *mockFiles {
	return &mockFiles{
		stores:  make(map[string]string),
		batches: make(map[string]*filestore.Batch),
	}
}

func (m *mockFiles) EnsureStore(_ context.Context, name string) (*filestore.StoreInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCalls++
	if m.ensureErr != nil {
		return nil, m.ensureErr
	}
	id, ok := m.stores[name]
	if !ok {
		id = fmt.Sprintf("vs-%d", len(m.stores)+1)
		m.stores[name] = id
	}
	return &filestore.StoreInfo{ID: id, Name: name}, nil
}

func (m *mockFiles) UploadFile(_ context.Context, filename string, content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, filename)
	m.uploadSizes = append(m.uploadSizes, len(content))
	return fmt.Sprintf("file-%d", len(m.uploads)), nil
}

func (m *mockFiles) CreateFileBatch(_ context.Context, storeID string, fileIDs []string) (*filestore.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCounter++
	batch := &filestore.Batch{
		ID:     fmt.Sprintf("batch-%d", m.batchCounter),
		Status: filestore.BatchInProgress,
		FileCounts: filestore.FileCounts{
			InProgress: len(fileIDs),
			Total:      len(fileIDs),
		},
	}
	m.batches[batch.ID] = batch
	return batch, nil
}

func (m *mockFiles) GetFileBatch(_ context.Context, _, batchID string) (*filestore.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	idx := m.statusCalls
	m.statusCalls++
	if len(m.statusSequence) == 0 {
		return &filestore.Batch{ID: batchID, Status: filestore.BatchInProgress}, nil
	}
	if idx >= len(m.statusSequence) {
		idx = len(m.statusSequence) - 1
	}
	status := m.statusSequence[idx]
	counts := filestore.FileCounts{Total: 3}
	if status == filestore.BatchCompleted {
		counts.Completed = 3
	}
	return &filestore.Batch{ID: batchID, Status: status, FileCounts: counts}, nil
}

// mockGen answers fallback-markdown generations.
type mockGen struct {
	mu       sync.Mutex
	calls    int
	markdown string
	err      error
}

func (g *mockGen) GenerateObject(_ context.Context, _ genai.Request, out any) (*genai.Result, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	payload, _ := json.Marshal(map[string]string{"markdown": g.markdown})
	if err := json.Unmarshal(payload, out); err != nil {
		return nil, err
	}
	return &genai.Result{Model: "test-model"}, nil
}

// capturingQueue records published messages.
type capturingQueue struct {
	mu        sync.Mutex
	published []captured
}

type captured struct {
	Topic queue.Topic
	Body  json.RawMessage
}

func (q *capturingQueue) Publish(_ context.Context, topic queue.Topic, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.published = append(q.published, captured{Topic: topic, Body: raw})
	q.mu.Unlock()
	return nil
}

func (q *capturingQueue) byTopic(topic queue.Topic) []captured {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []captured
	for _, c := range q.published {
		if c.Topic == topic {
			out = append(out, c)
		}
	}
	return out
}

func message(topic queue.Topic, payload any) queue.Message {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return queue.Message{Topic: topic, Body: raw, ReceiveCount: 1}
}
