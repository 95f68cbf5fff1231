package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/customer-intel/internal/model"
)

const researchAssistantRole = "You are a research assistant to help prepare customer meetings."

func masterDataPrompt(legalName, domain string) string {
	return fmt.Sprintf(`Task:
Look up and verify master data for the company: %s and the domain %s.

Objectives:
- Retrieve accurate, up-to-date master data from authoritative public sources.
- Prefer primary sources (official company website, annual report, filings, press releases).
- Use secondary sources (business databases, reputable news) only to confirm or fill gaps.
- Resolve conflicting information by citing the most reliable source and explaining the choice.

Method:
1. Identify the company's official web presence via the given domain.
2. Cross-check key facts with at least one independent, reputable source.
3. If data is missing or uncertain, provide best estimates and note uncertainty.
4. Avoid speculative or promotional language.

Output:
- Return the collected master data as structured factual content only.
- Do not invent values.
- Do not include schema descriptions or explanations of formatting.`, legalName, domain)
}

func assessmentPrompt(legalName, domain string) string {
	return fmt.Sprintf(`Task:
Conduct research on the company: %s with the domain %s.
Prioritize hard, verifiable facts; where facts are unavailable, derive reasoned estimates using current industry standards and benchmarks.

Objectives:
- Retrieve accurate, up-to-date information from authoritative public sources.
- Strongly prefer recent sources; flag foundational facts that only older sources cover.
- Prefer primary sources (official company website, recent annual reports, filings, press releases, official registers).
- Use secondary sources (reputable business databases, major financial or industry publications) only to confirm or complement primary data.
- Resolve conflicting information by selecting the most reliable and recent source and briefly explaining the choice.
- Keep results factual, concise, and analytical; avoid marketing language.

Method:
1. Use the provided domain to identify and confirm the company's official web presence; disambiguate from similarly named entities or subsidiaries.
2. Collect hard facts first: legal entity name and structure, headquarters, ownership, core products and industry segments, primary markets, employee count and revenue for the most recent available year.
3. Review recent content on the company's homepage, press releases, and news section to infer indicators of digital maturity (digital products, platforms, data, automation, AI, customer portals).
4. For attributes that are typically not disclosed publicly (number of IT employees, IT spend): do not return "unknown" unless estimation is impossible; derive a reasoned estimate using benchmarks, ratios, or norms for the industry and company size, label it as an estimate, and explain the basis.
5. Cross-check key facts with at least one independent, reputable source whenever possible.

Output:
- Return the researched company information as structured factual content only.
- Do not invent values arbitrarily.
- If a value is estimated, provide the best defensible estimate along with its rationale and confidence.
- Do not include schema descriptions or explanations of formatting.`, legalName, domain)
}

func competitionPrompt(req model.CompetitionRequest) string {
	return fmt.Sprintf(`Goal:
Find competing companies to: %s and the domain %s

Definition of "competitor" (must satisfy all):
1) Operates in the same industry segments: %s
2) Competes in the same geographic markets: %s
3) Has comparable scale: revenue within ~0.5x to 2x of %.0f Mio Euros
4) The competitor must be an independent company or a clearly identified business unit if part of a conglomerate.

Process:
A) Identify the customer's core segments, product lines, and main end-markets (use official sources first: company website, annual report, investor presentation, reputable industry profiles).
B) Identify the customer's revenue (most recent year) and currency; if private, use multiple reputable estimates and show the range.
C) Search for competitors in those segments and markets. Prefer annual reports, investor decks, reputable industry publications, market reports, and credible business databases; avoid low-quality listicles.
D) Filter to 8-12 best matches based on the criteria above.

Important rules:
- Set "customerDomain" to %q and "customerLegalName" to %q in the response.
- Always include the competitor's strongest evidence of direct overlap (specific product lines or business segments).
- Avoid "same broad industry" matches; the overlap must be specific.
- Use the most recent available fiscal year.`,
		req.LegalName, req.Domain,
		strings.Join(req.Industries, ", "), strings.Join(req.Markets, ", "),
		req.RevenueInMio, req.Customer(), req.LegalName)
}

func marketAnalysisPrompt(req model.MarketAnalysisRequest) string {
	return fmt.Sprintf(`Task:
Produce a thorough market and demand analysis for the company %q (domain: %s), focusing on the markets the company operates in and what customers in those markets are demanding.

Purpose:
Understand the customer's industry environment, structural market dynamics, and evolving customer demands as a foundation for later strategic and competitive analysis.

Analysis scope:
- Geography: %s
- Time horizon: current state plus emerging trends over the next 2-3 years
- Industry context: %s

Method:
1. Establish the company's market context: core business model and value chain position, primary products and end markets, customer types, approximate scale and maturity.
2. Identify customer demand patterns: what customers in the company's markets are increasingly demanding (price pressure, reliability, customization, speed, sustainability, compliance, digital interfaces, data transparency), based on observable signals.
3. Analyze market and industry trends: structural trends (economic, regulatory, supply chain, sustainability, labor, cost structures) and technology trends materially impacting the industry; distinguish well-established trends from emerging signals.
4. Implications for the company's customers: explain how identified trends and demand shifts change expectations placed on companies like %q; focus on operational, commercial, and organizational implications rather than solutions.

Guidelines:
- Prioritize hard facts and verifiable information.
- Where facts are unavailable, use explicit reasoning and clearly state assumptions.
- Avoid speculative, promotional, or solution-oriented language.
- Avoid references to competitors or competitive positioning.
- Do not suggest initiatives, roadmaps, or solutions at this stage.

Citation format requirements:
- For every factual value, attach a human-readable source: title, publisher, URL, and publication date.
- If a value is estimated, state the estimation method and cite the benchmark source.

Output:
Provide a structured, analytical narrative focused on market context, customer demand, and industry dynamics. Set "domain" to %q.`,
		req.LegalName, req.Domain,
		strings.Join(req.Markets, ", "), strings.Join(req.Industries, ", "),
		req.LegalName, req.Domain)
}

func newsPrompt(req model.NewsRequest) string {
	return fmt.Sprintf(`Task:
Search the public internet for news about the company %q (domain: %s).

Focus areas:
- Organizational changes (leadership, restructuring, M&A, hiring/firing initiatives)
- Announcements of new products, goods, or services
- Retrospectives or post-mortems on major initiatives
- Roadmap or strategic announcements
- IT-related updates (platform changes, major system rollouts, cloud migration, cybersecurity events)

Source rules:
- Use public, non-paywalled sources only (company website, press releases, blogs, reputable media).
- Avoid low-quality listicles or scraped aggregators.

Output rules:
- Only include items with a clear publication date.
- Do not include duplicates or multiple entries for the same source URL.
- Set "domain" to %q for every item.
- Limit each summary to at most 600 characters and hard cap at 12 items.
- Return structured data only; no prose or explanations.`,
		req.LegalName, req.Domain, req.Domain)
}

const competitionAnalysisRole = `You are a competitive analyst. Compare the competitor with the customer.

Use the provided market analyses and retrieved evidence to ground the comparison.
Use web search to validate facts and gather missing citations.
Separate facts from inferred insights.`

func competitionAnalysisPrompt(req model.CompetitionAnalysisRequest, customerAnalysis, competitorAnalysis string) string {
	return fmt.Sprintf(`Customer:
- Name: %s
- Domain: %s
- Market analysis: %s

Competitor:
- Name: %s
- Domain: %s
- Market analysis: %s

Required sections (structured output):
1) Summary (short, 5-8 bullets)
2) Strengths (competitor vs customer; list)
3) Weaknesses (competitor vs customer; list)
4) Niche positioning comparison (short narrative)
5) Market trends impact (list + short narrative)
6) Customer expectations alignment (list + short narrative)
7) Sources (title, publisher, url, date)

Output rules:
- Keep analysis under 3500 chars, summary under 1200 chars.
- Set "competitionId" to %q in the response.
- Include competitorDomain in the output.`,
		req.CustomerLegalName, req.CustomerDomain, customerAnalysis,
		req.CompetitorLegalName, req.CompetitorDomain, competitorAnalysis,
		model.PairKey(req.CustomerDomain, req.CompetitorDomain))
}

const itStrategyRole = "You are a senior enterprise IT strategist advising the executive board. You do NOT sell services and you do NOT propose vendors."

func itStrategyPrompt(customerDomain, customerLegalName string, profile *model.MasterData, analysis *model.MarketAnalysis, comparisons []model.CompetitionAnalysis, evidence []Evidence) string {
	profileJSON := mustJSON(profile)
	comparisonsJSON := mustJSON(comparisons)
	evidenceJSON := mustJSON(evidence)

	return fmt.Sprintf(`Context (frozen):
- Customer: %s (%s)
- Company profile: %s
- Market analysis (customer): %s
- Competition analysis (summaries): %s
- Evidence excerpts (id + source + text): %s

Task:
- Derive business-driven IT strategies that strengthen competitive advantages, compensate structural weaknesses, and enable new niches.
- Each strategy must cite at least one evidence id from the provided excerpts.

Constraints:
- Absolutely no vendors, products, or selling language.
- Strategies must stay business-driven and traceable to evidence.
- Avoid buzzwords and generic statements.
- Keep time horizon as one of: short, mid, long.

Output rules:
- Set "customerDomain" to %q and "customerLegalName" to %q.`,
		customerLegalName, customerDomain,
		profileJSON, analysis.Analysis, comparisonsJSON, evidenceJSON,
		customerDomain, customerLegalName)
}

const serviceMatchingRole = "You are a solution architect at an IT service provider. You align client IT strategies with existing services only."

func serviceMatchingPrompt(req model.ServiceMatchingRequest, profile *model.MasterData, strategy *model.ITStrategy, vendorCatalogStore string) string {
	return fmt.Sprintf(`Context (frozen):
- Customer: %s (%s)
- Company profile: %s
- IT strategies: %s
- Vendor catalog storage area id: %s

Task:
- For each IT strategy, identify supporting services from the vendor catalog.
- Explain the value contribution briefly.
- Provide entry-level engagement ideas.
- Call out gaps explicitly when no service matches.

Constraints:
- Do NOT invent services.
- Keep rationales short and concrete.
- If no match exists, set supportingServices to [] and gaps to ["no matching service"].

Output rules:
- Set "customerDomain" to %q, "customerLegalName" to %q and "itStrategyId" to %q.`,
		req.CustomerLegalName, req.CustomerDomain,
		mustJSON(profile), mustJSON(strategy.Strategies), vendorCatalogStore,
		req.CustomerDomain, req.CustomerLegalName, req.ITStrategyID)
}

const meetingPrepRole = "You are a senior sales engineer preparing an executive meeting. You seek insight and trust, not closing."

func meetingPrepPrompt(req model.MeetingPrepRequest, profile *model.MasterData, strategy *model.ITStrategy, matching *model.ServiceMatching) string {
	return fmt.Sprintf(`Context (frozen):
- Customer: %s (%s)
- Company profile: %s
- IT strategies (approved): %s
- Service matches: %s

Task:
- Prepare the meeting briefing with executive context, strategic hypotheses, smart questions (each tied to a strategy), strategic impulses (non-salesy), and low-risk POC ideas (objective, scope, success criteria).

Constraints:
- No generic sales language.
- Do not introduce services not present in the service matching output.
- Prioritize the 3-5 most relevant strategies for the meeting.
- Every question must cite the related strategy id or name.
- POCs must be exploratory and low-risk.

Output rules:
- Set "customerDomain" to %q, "customerLegalName" to %q, "itStrategyId" to %q and "serviceMatchingId" to %q.`,
		req.CustomerLegalName, req.CustomerDomain,
		mustJSON(profile), mustJSON(strategy.Strategies), mustJSON(matching.Matches),
		req.CustomerDomain, req.CustomerLegalName, req.ITStrategyID, req.ServiceMatchingID)
}

// FallbackMarkdownRole is the system prompt paired with FallbackMarkdownPrompt.
const FallbackMarkdownRole = "You are a research assistant preparing a file for a document index."

// FallbackMarkdownPrompt expands an unreachable source's summary into a
// markdown brief used in place of the original document.
func FallbackMarkdownPrompt(domain, docType, url, fallback string) string {
	var b strings.Builder
	b.WriteString("Task:\nExpand the summary below into a more detailed markdown brief.\n\nContext:\n")
	fmt.Fprintf(&b, "- Domain: %s\n- Type: %s\n", domain, docType)
	if url != "" {
		fmt.Fprintf(&b, "- Source URL (unavailable): %s\n", url)
	}
	b.WriteString("\nSummary to expand:\n")
	b.WriteString(fallback)
	b.WriteString(`

Rules:
- Output markdown only.
- Do not invent facts that are not implied by the summary.
- If details are missing, state them as unknown.
- Keep the content concise but richer than the summary.`)
	return b.String()
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
