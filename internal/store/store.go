package store

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

var (
	// ErrNotFound is returned by Get when no document has the given id.
	ErrNotFound = errors.New("store: document not found")

	// ErrConflict is returned by Put when a document with the same id
	// already exists. Callers must treat it as "already done" and re-Get
	// the stored winner.
	ErrConflict = errors.New("store: document already exists")
)

// identityNamespace is the fixed UUIDv5 namespace for natural keys. It must
// never change: the derivation is the contract between producers.
var identityNamespace = uuid.MustParse("91e04f5e-8b2d-4c5a-b7d3-6f1a0c9e4a21")

// Identity deterministically derives a document id from a natural key.
func Identity(naturalKey string) string {
	return uuid.NewSHA1(identityNamespace, []byte(naturalKey)).String()
}

// Document is one stored record: JSON properties plus optional named
// vectors. Documents are immutable once written.
type Document struct {
	ID         string               `json:"id"`
	Collection string               `json:"collection"`
	Properties json.RawMessage      `json:"properties"`
	Vectors    map[string][]float32 `json:"vectors,omitempty"`
}

// SearchQuery selects documents in a collection. With a Vector it ranks by
// cosine similarity against the named vector slot; without one it is a
// filtered scan in insertion order.
type SearchQuery struct {
	Vector     []float32
	VectorName string
	// Filter matches top-level string properties for equality.
	Filter map[string]string
	Limit  int
}

// Relation declares a typed edge from one collection to another.
type Relation struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

// CollectionDefinition is the one-time schema declaration per collection.
type CollectionDefinition struct {
	Name      string     `json:"name"`
	Relations []Relation `json:"relations,omitempty"`
	// VectorSlots are the named vector slots documents may carry.
	VectorSlots []string `json:"vectorSlots,omitempty"`
}

// TargetOf resolves the target collection of a declared relation.
func (d CollectionDefinition) TargetOf(relation string) (string, bool) {
	for _, r := range d.Relations {
		if r.Name == relation {
			return r.Target, true
		}
	}
	return "", false
}

// Store is the document database used by every pipeline stage.
type Store interface {
	// Get fetches one document; ErrNotFound when absent.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Put inserts a document; ErrConflict when the id is taken. There is
	// no update path: entities are immutable.
	Put(ctx context.Context, collection string, doc Document) error

	// Link creates the directed edge from->to under the given relation.
	// The source must already exist; the target is not checked, so edges
	// may be recorded ahead of the document they point at. Duplicate
	// links are absorbed.
	Link(ctx context.Context, collection, fromID, relation, toID string) error

	// Search runs a filtered (optionally vector-ranked) query.
	Search(ctx context.Context, collection string, q SearchQuery) ([]Document, error)

	// EnsureCollection declares a collection schema, optionally dropping
	// an existing one first.
	EnsureCollection(ctx context.Context, def CollectionDefinition, overwrite bool) error

	Migrate(ctx context.Context) error
	Close() error
}

// Collection names.
const (
	CollectionMasterData          = "CompanyMasterData"
	CollectionAssessment          = "CompanyAssessment"
	CollectionCompetitorSet       = "CompetingCompanies"
	CollectionMarketAnalysis      = "MarketAnalysis"
	CollectionCompetitionAnalysis = "CompetitionAnalysis"
	CollectionITStrategy          = "ITStrategy"
	CollectionServiceMatching     = "ServiceMatching"
	CollectionMeetingPrep         = "SalesMeetingPrep"
	CollectionNews                = "CompanyNews"
)

// Relation names on CompanyMasterData.
const (
	RelAssessment          = "assessment"
	RelMarketAnalysis      = "marketAnalysis"
	RelNews                = "news"
	RelCompetitors         = "competingCompanies"
	RelCompetitionAnalysis = "competitionAnalysis"
	RelITStrategy          = "itStrategy"
	RelServiceMatching     = "serviceMatching"
	RelMeetingPrep         = "salesMeetingPrep"
)

// RelCompetitorMaster links a CompetitionAnalysis back to the competitor's
// master data.
const RelCompetitorMaster = "competitionMasterData"

// Vector slot names.
const (
	VectorCompetitionLens = "competitionAnalysisLense"
	VectorNewsLens        = "newsAnalysisLense"
)

// Collections returns the full schema declared by the pipeline.
func Collections() []CollectionDefinition {
	return []CollectionDefinition{
		{
			Name: CollectionMasterData,
			Relations: []Relation{
				{Name: RelAssessment, Target: CollectionAssessment},
				{Name: RelMarketAnalysis, Target: CollectionMarketAnalysis},
				{Name: RelNews, Target: CollectionNews},
				{Name: RelCompetitors, Target: CollectionMasterData},
				{Name: RelCompetitionAnalysis, Target: CollectionCompetitionAnalysis},
				{Name: RelITStrategy, Target: CollectionITStrategy},
				{Name: RelServiceMatching, Target: CollectionServiceMatching},
				{Name: RelMeetingPrep, Target: CollectionMeetingPrep},
			},
		},
		{Name: CollectionAssessment},
		{Name: CollectionCompetitorSet},
		{
			Name:        CollectionMarketAnalysis,
			VectorSlots: []string{VectorCompetitionLens},
		},
		{
			Name: CollectionCompetitionAnalysis,
			Relations: []Relation{
				{Name: RelCompetitorMaster, Target: CollectionMasterData},
			},
		},
		{Name: CollectionITStrategy},
		{Name: CollectionServiceMatching},
		{Name: CollectionMeetingPrep},
		{
			Name:        CollectionNews,
			VectorSlots: []string{VectorNewsLens},
		},
	}
}

// GetEntity fetches and decodes the entity stored under a natural key.
func GetEntity[T any](ctx context.Context, s Store, collection, naturalKey string) (*T, error) {
	doc, err := s.Get(ctx, collection, Identity(naturalKey))
	if err != nil {
		return nil, err
	}
	var entity T
	if err := json.Unmarshal(doc.Properties, &entity); err != nil {
		return nil, eris.Wrapf(err, "store: decode %s/%s", collection, naturalKey)
	}
	return &entity, nil
}

// PutEntity encodes and inserts an entity under its natural key.
// ErrConflict passes through untouched so callers can re-Get the winner.
func PutEntity[T any](ctx context.Context, s Store, collection, naturalKey string, entity T, vectors map[string][]float32) error {
	props, err := json.Marshal(entity)
	if err != nil {
		return eris.Wrapf(err, "store: encode %s/%s", collection, naturalKey)
	}
	putErr := s.Put(ctx, collection, Document{
		ID:         Identity(naturalKey),
		Collection: collection,
		Properties: props,
		Vectors:    vectors,
	})
	if errors.Is(putErr, ErrConflict) {
		return ErrConflict
	}
	return putErr
}

// LinkKeys creates a link between two entities addressed by natural keys.
func LinkKeys(ctx context.Context, s Store, collection, fromKey, relation, toKey string) error {
	return s.Link(ctx, collection, Identity(fromKey), relation, Identity(toKey))
}

// CosineSimilarity ranks candidate vectors; backends without native vector
// indexes rank filtered candidate sets with it.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
