package model

// SubjectRole tags whether a pipeline input describes the customer being
// researched or one of its competitors.
type SubjectRole string

const (
	RoleCustomer   SubjectRole = "customer"
	RoleCompetitor SubjectRole = "competitor"
)

// PairKeySeparator composes the identity of customer/competitor pair records.
const PairKeySeparator = "|"

// PairKey builds the natural key for a customer/competitor comparison.
func PairKey(customerDomain, competitorDomain string) string {
	return customerDomain + PairKeySeparator + competitorDomain
}

// Address is the headquarters address of a company.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// MasterData holds verified base facts for a company, keyed by domain.
type MasterData struct {
	Domain      string  `json:"domain"`
	LegalName   string  `json:"legalName"`
	CountryCode string  `json:"countryCode"`
	Address     Address `json:"address"`
}

// Validate checks the field constraints the master-data stage guarantees.
func (m MasterData) Validate() error {
	v := newValidator("MasterData")
	v.domain("domain", m.Domain)
	v.text("legalName", m.LegalName, 1, 255)
	v.text("countryCode", m.CountryCode, 1, 255)
	v.text("address.street", m.Address.Street, 1, 255)
	v.text("address.city", m.Address.City, 1, 255)
	v.text("address.country", m.Address.Country, 1, 255)
	return v.err()
}

// Estimate is a single researched value with its provenance. Confidence is 1
// when the exact value was found, otherwise the confidence of the estimate.
type Estimate[T any] struct {
	Value      T       `json:"value"`
	Source     string  `json:"source"`
	Citation   string  `json:"citation"`
	Date       string  `json:"date"`
	Confidence float64 `json:"confidence"`
}

func validateEstimate[T any](v *validator, field string, e Estimate[T]) {
	v.text(field+".source", e.Source, 1, 2048)
	v.text(field+".citation", e.Citation, 1, 2048)
	if e.Confidence < 0 || e.Confidence > 1 {
		v.add(field+".confidence", "must be in [0,1]")
	}
}

// Assessment is the quantitative view of a company, keyed by domain.
type Assessment struct {
	Domain              string              `json:"domain"`
	RevenueInMio        Estimate[float64]   `json:"revenueInMio"`
	RevenueGrowth       Estimate[float64]   `json:"revenueGrowth"`
	NumberOfEmployees   Estimate[float64]   `json:"numberOfEmployees"`
	NumberOfITEmployees Estimate[float64]   `json:"numberOfITEmployees"`
	DigitalMaturity     Estimate[string]    `json:"digitalMaturity"`
	ITSpendInMio        Estimate[float64]   `json:"itSpendInMio"`
	IndustryConstraints Estimate[[]string]  `json:"industrySpecificConstraints"`
	Markets             Estimate[[]string]  `json:"markets"`
	Industries          Estimate[[]string]  `json:"industries"`
}

// Validate checks the assessment field constraints.
func (a Assessment) Validate() error {
	v := newValidator("Assessment")
	v.domain("domain", a.Domain)
	validateEstimate(v, "revenueInMio", a.RevenueInMio)
	validateEstimate(v, "markets", a.Markets)
	validateEstimate(v, "industries", a.Industries)
	for i, m := range a.Markets.Value {
		if len(m) != 2 && m != "global" {
			v.addf("markets.value[%d]", i, "must be a 2-letter country code or \"global\"")
		}
	}
	return v.err()
}

// CompetitorRef identifies a single competing company.
type CompetitorRef struct {
	LegalName string `json:"competitionLegalName"`
	Domain    string `json:"competitionDomain"`
}

// CompetitorSet lists the competitors discovered for a customer, keyed by
// the customer domain.
type CompetitorSet struct {
	CustomerDomain    string          `json:"customerDomain"`
	CustomerLegalName string          `json:"customerLegalName"`
	Competitors       []CompetitorRef `json:"competition"`
}

// Validate checks the competitor set field constraints.
func (c CompetitorSet) Validate() error {
	v := newValidator("CompetitorSet")
	v.domain("customerDomain", c.CustomerDomain)
	v.text("customerLegalName", c.CustomerLegalName, 1, 255)
	for i, ref := range c.Competitors {
		if ref.Domain == "" {
			v.addf("competition[%d].competitionDomain", i, "must not be empty")
		}
		if len(ref.LegalName) < 1 || len(ref.LegalName) > 255 {
			v.addf("competition[%d].competitionLegalName", i, "must be 1..255 chars")
		}
	}
	return v.err()
}

// MarketAnalysis is the narrative market view for one subject domain.
// StorageAreaID points at the external storage area holding the ingested
// source material used to ground later comparisons.
type MarketAnalysis struct {
	Domain        string `json:"domain"`
	Analysis      string `json:"analysis"`
	StorageAreaID string `json:"storageAreaId,omitempty"`
}

// Validate checks the market analysis field constraints.
func (m MarketAnalysis) Validate() error {
	v := newValidator("MarketAnalysis")
	v.domain("domain", m.Domain)
	v.text("analysis", m.Analysis, 1, 0)
	return v.err()
}

// CompetitionAnalysis compares one competitor against one customer, keyed by
// the composed pair key.
type CompetitionAnalysis struct {
	PairKey              string   `json:"competitionId"`
	CustomerDomain       string   `json:"customerDomain"`
	CompetitorDomain     string   `json:"competitorDomain"`
	CustomerLegalName    string   `json:"customerLegalName"`
	CompetitorLegalName  string   `json:"competitorLegalName"`
	Summary              string   `json:"summary"`
	Analysis             string   `json:"analysis"`
	Strengths            []string `json:"strengths"`
	Weaknesses           []string `json:"weaknesses"`
	NichePositioning     string   `json:"nichePositioning"`
	MarketTrendsImpact   []string `json:"marketTrendsImpact"`
	ExpectationAlignment []string `json:"customerExpectationsAlignment"`
	Sources              []Source `json:"sources"`
}

// Source is a human-readable citation.
type Source struct {
	Title     string `json:"title"`
	Publisher string `json:"publisher"`
	URL       string `json:"url"`
	Date      string `json:"date"`
}

// Validate checks the competition analysis field constraints.
func (c CompetitionAnalysis) Validate() error {
	v := newValidator("CompetitionAnalysis")
	v.domain("customerDomain", c.CustomerDomain)
	v.domain("competitorDomain", c.CompetitorDomain)
	if c.PairKey != PairKey(c.CustomerDomain, c.CompetitorDomain) {
		v.add("competitionId", "must equal customerDomain|competitorDomain")
	}
	v.text("summary", c.Summary, 1, 0)
	return v.err()
}

// Strategy is a single business-driven IT strategy with its evidence trail.
type Strategy struct {
	ID                       string   `json:"id"`
	Name                     string   `json:"name"`
	Intent                   string   `json:"intent"`
	CompetitiveRationale     string   `json:"competitiveRationale"`
	BusinessCapabilityImpact string   `json:"businessCapabilityImpact"`
	ITCapabilityImplications string   `json:"itCapabilityImplications"`
	RiskIfNotPursued         string   `json:"riskIfNotPursued"`
	TimeHorizon              string   `json:"timeHorizon"` // short, mid, long
	EvidenceIDs              []string `json:"evidenceIds"`
}

// ITStrategy is the derived strategy set for a customer, keyed by domain.
type ITStrategy struct {
	CustomerDomain          string     `json:"customerDomain"`
	CustomerLegalName       string     `json:"customerLegalName"`
	Strategies              []Strategy `json:"strategies"`
	StrengthAmplification   []string   `json:"strengthAmplification"`
	WeaknessCompensation    []string   `json:"weaknessCompensation"`
	NewNicheDifferentiation []string   `json:"newNicheDifferentiation"`
	Sources                 []Source   `json:"sources"`
}

// Validate checks the IT strategy field constraints.
func (s ITStrategy) Validate() error {
	v := newValidator("ITStrategy")
	v.domain("customerDomain", s.CustomerDomain)
	v.text("customerLegalName", s.CustomerLegalName, 1, 255)
	for i, st := range s.Strategies {
		if st.Name == "" {
			v.addf("strategies[%d].name", i, "must not be empty")
		}
		if len(st.EvidenceIDs) == 0 {
			v.addf("strategies[%d].evidenceIds", i, "must cite at least one evidence id")
		}
	}
	return v.err()
}

// StrategyMatch maps one strategy to supporting vendor services.
type StrategyMatch struct {
	StrategyName       string   `json:"strategyName"`
	SupportingServices []string `json:"supportingServices"`
	ValueContribution  string   `json:"valueContribution"`
	EntryIdeas         []string `json:"entryLevelEngagementIdeas"`
	Gaps               []string `json:"gaps"`
}

// ServiceMatching maps a customer's strategies onto the vendor catalog,
// keyed by the customer domain.
type ServiceMatching struct {
	CustomerDomain    string          `json:"customerDomain"`
	CustomerLegalName string          `json:"customerLegalName"`
	ITStrategyID      string          `json:"itStrategyId"`
	Matches           []StrategyMatch `json:"matches"`
}

// Validate checks the service matching field constraints.
func (s ServiceMatching) Validate() error {
	v := newValidator("ServiceMatching")
	v.domain("customerDomain", s.CustomerDomain)
	v.text("itStrategyId", s.ITStrategyID, 1, 255)
	return v.err()
}

// POCIdea is a low-risk proof-of-concept suggestion for the meeting.
type POCIdea struct {
	Objective       string `json:"objective"`
	Scope           string `json:"scope"`
	SuccessCriteria string `json:"successCriteria"`
}

// MeetingPrep is the executive briefing for a customer, keyed by domain.
type MeetingPrep struct {
	CustomerDomain      string    `json:"customerDomain"`
	CustomerLegalName   string    `json:"customerLegalName"`
	ITStrategyID        string    `json:"itStrategyId"`
	ServiceMatchingID   string    `json:"serviceMatchingId"`
	ExecutiveBriefing   string    `json:"executiveBriefing"`
	StrategicHypotheses []string  `json:"strategicHypotheses"`
	Questions           []string  `json:"questionsToAsk"`
	Impulses            []string  `json:"strategicImpulses"`
	POCIdeas            []POCIdea `json:"pocIdeas"`
}

// Validate checks the meeting prep field constraints.
func (m MeetingPrep) Validate() error {
	v := newValidator("MeetingPrep")
	v.domain("customerDomain", m.CustomerDomain)
	v.text("executiveBriefing", m.ExecutiveBriefing, 1, 0)
	return v.err()
}

// NewsItem is a single dated news reference for a company, keyed by its
// source URL.
type NewsItem struct {
	Domain  string `json:"domain"`
	Source  string `json:"source"`
	Summary string `json:"summary"`
	Date    string `json:"date"`
}

// Validate checks the news item field constraints.
func (n NewsItem) Validate() error {
	v := newValidator("NewsItem")
	v.domain("domain", n.Domain)
	v.text("source", n.Source, 1, 2048)
	v.text("summary", n.Summary, 1, 0)
	v.text("date", n.Date, 1, 64)
	return v.err()
}
