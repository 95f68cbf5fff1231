package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/sells-group/customer-intel/internal/queue"
	"github.com/sells-group/customer-intel/internal/store"
	"github.com/sells-group/customer-intel/pkg/genai"
)

// memStore implements store.Store in memory for handler tests.
type memStore struct {
	mu    sync.Mutex
	docs  map[string]map[string]store.Document // collection → id → doc
	links []linkEdge
	order map[string][]string // collection → ids in insertion order

	failPut map[string]error // collection → error forced on Put
}

type linkEdge struct {
	Collection, FromID, Relation, ToID string
}

func newMemStore() *memStore {
	return &memStore{
		docs:    make(map[string]map[string]store.Document),
		order:   make(map[string][]string),
		failPut: make(map[string]error),
	}
}

func (m *memStore) Get(_ context.Context, collection, id string) (*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &doc, nil
}

func (m *memStore) Put(_ context.Context, collection string, doc store.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failPut[collection]; ok {
		return err
	}
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]store.Document)
	}
	if _, exists := m.docs[collection][doc.ID]; exists {
		return store.ErrConflict
	}
	m.docs[collection][doc.ID] = doc
	m.order[collection] = append(m.order[collection], doc.ID)
	return nil
}

func (m *memStore) Link(_ context.Context, collection, fromID, relation, toID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[collection][fromID]; !ok {
		return store.ErrNotFound
	}
	edge := linkEdge{collection, fromID, relation, toID}
	for _, existing := range m.links {
		if existing == edge {
			return nil
		}
	}
	m.links = append(m.links, edge)
	return nil
}

func (m *memStore) Search(_ context.Context, collection string, q store.SearchQuery) ([]store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []store.Document
	for _, id := range m.order[collection] {
		doc := m.docs[collection][id]
		if !matchesFilter(doc, q.Filter) {
			continue
		}
		matched = append(matched, doc)
	}

	if len(q.Vector) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return store.CosineSimilarity(matched[i].Vectors[q.VectorName], q.Vector) >
				store.CosineSimilarity(matched[j].Vectors[q.VectorName], q.Vector)
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func matchesFilter(doc store.Document, filter map[string]string) bool {
	if len(filter) == 0 {
		return true
	}
	var props map[string]any
	if err := json.Unmarshal(doc.Properties, &props); err != nil {
		return false
	}
	for field, want := range filter {
		got, _ := props[field].(string)
		if got != want {
			return false
		}
	}
	return true
}

func (m *memStore) EnsureCollection(context.Context, store.CollectionDefinition, bool) error {
	return nil
}
func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

func (m *memStore) count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

func (m *memStore) linked(collection, relation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, edge := range m.links {
		if edge.Collection == collection && edge.Relation == relation {
			n++
		}
	}
	return n
}

// mockGen implements genai.Client with canned per-schema responses. The
// respond function may vary the payload by input; calls are counted per
// schema name.
type mockGen struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(req genai.Request) (string, error)
}

func newMockGen(respond func(req genai.Request) (string, error)) *mockGen {
	return &mockGen{calls: make(map[string]int), respond: respond}
}

func (g *mockGen) GenerateObject(_ context.Context, req genai.Request, out any) (*genai.Result, error) {
	g.mu.Lock()
	g.calls[req.Schema.Name]++
	g.mu.Unlock()

	payload, err := g.respond(req)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return nil, err
	}
	return &genai.Result{Model: "test-model"}, nil
}

func (g *mockGen) callCount(schema string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[schema]
}

// mockEmbedder returns deterministic vectors derived from text length.
type mockEmbedder struct{}

func (mockEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text) % 7), 1, 0.5}, nil
}

func (mockEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text) % 7), 1, 0.5}
	}
	return vectors, nil
}

// capturingQueue records published messages instead of delivering them.
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

func decodeCaptured[T any](c captured) (T, error) {
	var v T
	err := json.Unmarshal(c.Body, &v)
	return v, err
}

// stubProber reports a fixed reachability answer.
type stubProber struct{ reachable bool }

func (s stubProber) Reachable(context.Context, string) bool { return s.reachable }

// message wraps a payload as a queue delivery for direct handler calls.
func message(topic queue.Topic, payload any) queue.Message {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("marshal test message: %v", err))
	}
	return queue.Message{Topic: topic, Body: raw, ReceiveCount: 1}
}

// Canned generation payloads keyed by schema name. Identity fields are left
// to the handlers' fixups where they would be overwritten anyway.
func cannedResponse(req genai.Request) (string, error) {
	switch req.Schema.Name {
	case "company_master_data":
		return `{"legalName":"Acme Corp","countryCode":"US","address":{"street":"1 Main St","city":"Springfield","region":"IL","postalCode":"62701","country":"USA"}}`, nil
	case "company_assessment":
		return `{
			"revenueInMio":{"value":120,"source":"https://example.com/r","citation":"annual report","date":"2025-04-01","confidence":0.8},
			"revenueGrowth":{"value":0.1,"source":"https://example.com/g","citation":"report","date":"2025-04-01","confidence":0.6},
			"numberOfEmployees":{"value":800,"source":"https://example.com/e","citation":"report","date":"2025-04-01","confidence":0.7},
			"numberOfITEmployees":{"value":40,"source":"https://example.com/it","citation":"estimate","date":"2025-04-01","confidence":0.4},
			"digitalMaturity":{"value":"intermediate","source":"https://example.com/d","citation":"estimate","date":"2025-04-01","confidence":0.5},
			"itSpendInMio":{"value":4,"source":"https://example.com/s","citation":"estimate","date":"2025-04-01","confidence":0.4},
			"industrySpecificConstraints":{"value":["regulation"],"source":"https://example.com/c","citation":"estimate","date":"2025-04-01","confidence":0.5},
			"markets":{"value":["US","global"],"source":"https://example.com/m","citation":"report","date":"2025-04-01","confidence":0.9},
			"industries":{"value":["manufacturing"],"source":"https://example.com/i","citation":"report","date":"2025-04-01","confidence":0.9}
		}`, nil
	case "competing_companies":
		return `{"competition":[
			{"competitionLegalName":"Rival One Inc","competitionDomain":"rival-one.com"},
			{"competitionLegalName":"Rival Two GmbH","competitionDomain":"rival-two.com"},
			{"competitionLegalName":"Rival One Duplicate","competitionDomain":"rival-one.com"}
		]}`, nil
	case "market_analysis":
		return `{"analysis":"A thorough market narrative.\n\nSecond paragraph with positioning detail."}`, nil
	case "company_news_list":
		return `{"list":[
			{"source":"https://news.example.com/a","summary":"Acme expands to Europe.","date":"2025-06-01"},
			{"source":"https://news.example.com/b","summary":"Acme hires new CIO.","date":"2025-07-15"}
		]}`, nil
	case "competition_analysis":
		return `{"summary":"Head to head summary.","analysis":"Comparison narrative.","strengths":["scale"],"weaknesses":["legacy IT"],"nichePositioning":"mid-market","marketTrendsImpact":["automation"],"customerExpectationsAlignment":["reliability"],"sources":[]}`, nil
	case "it_strategy":
		return `{"strategies":[{"id":"s1","name":"Modernize ERP","intent":"replace legacy core","competitiveRationale":"rivals move faster","businessCapabilityImpact":"order to cash","itCapabilityImplications":"cloud migration","riskIfNotPursued":"stagnation","timeHorizon":"mid","evidenceIds":["ev-1"]}],"strengthAmplification":["scale"],"weaknessCompensation":["legacy IT"],"newNicheDifferentiation":["service quality"],"sources":[]}`, nil
	case "service_matching":
		return `{"matches":[{"strategyName":"Modernize ERP","supportingServices":["ERP migration"],"valueContribution":"less downtime","entryLevelEngagementIdeas":["assessment workshop"],"gaps":[]}]}`, nil
	case "sales_meeting_prep":
		return `{"executiveBriefing":"Acme is mid-market and modernizing.","strategicHypotheses":["ERP is the entry point"],"questionsToAsk":["Who owns the ERP roadmap?"],"strategicImpulses":["offer a workshop"],"pocIdeas":[{"objective":"migrate one module","scope":"finance","successCriteria":"parallel run passes"}]}`, nil
	case "document_markdown":
		return `{"markdown":"# Expanded brief\n\nDetails."}`, nil
	default:
		return "", fmt.Errorf("no canned response for schema %q", req.Schema.Name)
	}
}
