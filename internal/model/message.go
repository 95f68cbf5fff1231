package model

// Stage messages are flat JSON objects exchanged over the queue transport.
// Decoders must tolerate unknown extra fields; producers may enrich a
// message with upstream-derived fields the next stage needs.

// ResearchRequest triggers master-data research for a company. It is the
// pipeline entry message; fan-out re-uses it with Role set to "competitor"
// and CustomerDomain pointing back at the originating customer.
type ResearchRequest struct {
	Domain         string      `json:"domain"`
	LegalName      string      `json:"legalName"`
	CustomerDomain string      `json:"customerDomain,omitempty"`
	Role           SubjectRole `json:"subjectType,omitempty"`
}

// Validate checks the request against its schema.
func (r ResearchRequest) Validate() error {
	v := newValidator("ResearchRequest")
	v.domain("domain", r.Domain)
	v.text("legalName", r.LegalName, 1, 255)
	if r.Role != "" && r.Role != RoleCustomer && r.Role != RoleCompetitor {
		v.add("subjectType", "must be customer or competitor")
	}
	return v.err()
}

// Customer resolves the customer domain, defaulting to the subject itself.
func (r ResearchRequest) Customer() string {
	if r.CustomerDomain != "" {
		return r.CustomerDomain
	}
	return r.Domain
}

// Subject resolves the role, defaulting to customer.
func (r ResearchRequest) Subject() SubjectRole {
	if r.Role == "" {
		return RoleCustomer
	}
	return r.Role
}

// CompetitionRequest asks the competition stage for a competitor set. The
// assessment stage enriches the research request with its estimates so the
// generator can scope the search.
type CompetitionRequest struct {
	ResearchRequest
	RevenueInMio float64  `json:"revenueInMio"`
	Industries   []string `json:"industries"`
	Markets      []string `json:"markets"`
}

// Validate checks the request against its schema.
func (r CompetitionRequest) Validate() error {
	if err := r.ResearchRequest.Validate(); err != nil {
		return err
	}
	v := newValidator("CompetitionRequest")
	if len(r.Industries) == 0 {
		v.add("industries", "must not be empty")
	}
	if len(r.Markets) == 0 {
		v.add("markets", "must not be empty")
	}
	return v.err()
}

// MarketAnalysisRequest asks the market-analysis stage for a subject domain.
// StorageAreaID is set on the ingestion continuation path once source
// material has been indexed.
type MarketAnalysisRequest struct {
	Domain         string      `json:"domain"`
	LegalName      string      `json:"legalName"`
	Industries     []string    `json:"industries"`
	Markets        []string    `json:"markets"`
	CustomerDomain string      `json:"customerDomain,omitempty"`
	Role           SubjectRole `json:"subjectType,omitempty"`
	StorageAreaID  string      `json:"storageAreaId,omitempty"`
}

// Validate checks the request against its schema.
func (r MarketAnalysisRequest) Validate() error {
	v := newValidator("MarketAnalysisRequest")
	v.domain("domain", r.Domain)
	v.text("legalName", r.LegalName, 1, 255)
	if len(r.Industries) == 0 {
		v.add("industries", "must not be empty")
	}
	if len(r.Markets) == 0 {
		v.add("markets", "must not be empty")
	}
	return v.err()
}

// Customer resolves the customer domain, defaulting to the subject itself.
func (r MarketAnalysisRequest) Customer() string {
	if r.CustomerDomain != "" {
		return r.CustomerDomain
	}
	return r.Domain
}

// Subject resolves the role, defaulting to customer.
func (r MarketAnalysisRequest) Subject() SubjectRole {
	if r.Role == "" {
		return RoleCustomer
	}
	return r.Role
}

// NewsRequest asks the news stage for recent items about a company.
type NewsRequest struct {
	Domain    string `json:"domain"`
	LegalName string `json:"legalCompanyName"`
}

// Validate checks the request against its schema.
func (r NewsRequest) Validate() error {
	v := newValidator("NewsRequest")
	v.domain("domain", r.Domain)
	v.text("legalCompanyName", r.LegalName, 1, 255)
	return v.err()
}

// CompetitionAnalysisRequest triggers a customer/competitor comparison once
// both market analyses exist. It carries everything the comparison needs so
// the stage does not depend on message ordering.
type CompetitionAnalysisRequest struct {
	CustomerDomain          string `json:"customerDomain"`
	CompetitorDomain        string `json:"competitorDomain"`
	CustomerLegalName       string `json:"customerLegalName"`
	CompetitorLegalName     string `json:"competitorLegalName"`
	CustomerStorageAreaID   string `json:"customerStorageAreaId,omitempty"`
	CompetitorStorageAreaID string `json:"competitorStorageAreaId,omitempty"`
	CustomerAnalysisID      string `json:"customerMarketAnalysisId"`
	CompetitorAnalysisID    string `json:"competitorMarketAnalysisId"`
}

// Validate checks the request against its schema.
func (r CompetitionAnalysisRequest) Validate() error {
	v := newValidator("CompetitionAnalysisRequest")
	v.domain("customerDomain", r.CustomerDomain)
	v.domain("competitorDomain", r.CompetitorDomain)
	v.text("customerLegalName", r.CustomerLegalName, 1, 255)
	v.text("competitorLegalName", r.CompetitorLegalName, 1, 255)
	v.text("customerMarketAnalysisId", r.CustomerAnalysisID, 1, 255)
	v.text("competitorMarketAnalysisId", r.CompetitorAnalysisID, 1, 255)
	return v.err()
}

// ITStrategyRequest triggers strategy derivation for a customer.
type ITStrategyRequest struct {
	CustomerDomain string      `json:"customerDomain"`
	Role           SubjectRole `json:"subjectType,omitempty"`
}

// Validate checks the request against its schema.
func (r ITStrategyRequest) Validate() error {
	v := newValidator("ITStrategyRequest")
	v.domain("customerDomain", r.CustomerDomain)
	return v.err()
}

// ServiceMatchingRequest triggers the strategy-to-service matching stage.
type ServiceMatchingRequest struct {
	CustomerDomain     string      `json:"customerDomain"`
	Role               SubjectRole `json:"subjectType,omitempty"`
	CustomerLegalName  string      `json:"customerLegalName"`
	ITStrategyID       string      `json:"itStrategyId"`
	VendorCatalogStore string      `json:"vendorCatalogVectorStoreId,omitempty"`
}

// Validate checks the request against its schema.
func (r ServiceMatchingRequest) Validate() error {
	v := newValidator("ServiceMatchingRequest")
	v.domain("customerDomain", r.CustomerDomain)
	v.text("customerLegalName", r.CustomerLegalName, 1, 255)
	v.text("itStrategyId", r.ITStrategyID, 1, 255)
	return v.err()
}

// MeetingPrepRequest triggers the meeting briefing stage.
type MeetingPrepRequest struct {
	CustomerDomain    string      `json:"customerDomain"`
	Role              SubjectRole `json:"subjectType,omitempty"`
	CustomerLegalName string      `json:"customerLegalName"`
	ITStrategyID      string      `json:"itStrategyId"`
	ServiceMatchingID string      `json:"serviceMatchingId"`
}

// Validate checks the request against its schema.
func (r MeetingPrepRequest) Validate() error {
	v := newValidator("MeetingPrepRequest")
	v.domain("customerDomain", r.CustomerDomain)
	v.text("customerLegalName", r.CustomerLegalName, 1, 255)
	v.text("itStrategyId", r.ITStrategyID, 1, 255)
	v.text("serviceMatchingId", r.ServiceMatchingID, 1, 255)
	return v.err()
}

// IngestRequest asks the ingestion stage to fetch one source document and
// index it into a named storage area. Fallback is a short summary that gets
// expanded to markdown when the source cannot be fetched.
type IngestRequest struct {
	Domain      string `json:"domain"`
	URL         string `json:"url"`
	Fallback    string `json:"fallback"`
	StorageArea string `json:"vectorStore"`
	Type        string `json:"type"`
	// Context is carried through to the batch continuation.
	Context BatchContext `json:"context"`
}

// Validate checks the request against its schema.
func (r IngestRequest) Validate() error {
	v := newValidator("IngestRequest")
	v.domain("domain", r.Domain)
	v.text("url", r.URL, 1, 2048)
	v.text("fallback", r.Fallback, 1, 0)
	v.text("vectorStore", r.StorageArea, 1, 255)
	v.text("type", r.Type, 1, 64)
	return v.err()
}

// BatchContext is the submission-time context replayed into the
// continuation message once an ingestion batch completes.
type BatchContext struct {
	Domain     string   `json:"domain"`
	LegalName  string   `json:"legalName"`
	Industries []string `json:"industries"`
	Markets    []string `json:"markets"`
}

// BatchCheckRequest drives one status check of a long-running ingestion
// batch within the polling state machine.
type BatchCheckRequest struct {
	StorageAreaID   string       `json:"storageAreaId,omitempty"`
	StorageAreaName string       `json:"storageAreaName"`
	BatchID         string       `json:"batchId"`
	Context         BatchContext `json:"context"`
}

// Validate checks the request against its schema.
func (r BatchCheckRequest) Validate() error {
	v := newValidator("BatchCheckRequest")
	v.text("storageAreaName", r.StorageAreaName, 1, 255)
	v.text("batchId", r.BatchID, 1, 255)
	v.domain("context.domain", r.Context.Domain)
	v.text("context.legalName", r.Context.LegalName, 1, 255)
	return v.err()
}
