package pipeline

import "github.com/sells-group/customer-intel/pkg/genai"

// JSON schema fragments for the structured generation outputs. The schemas
// mirror the entity structs in internal/model; field names must stay in
// lockstep with their json tags.

func strProp(desc string) map[string]any {
	p := map[string]any{"type": "string"}
	if desc != "" {
		p["description"] = desc
	}
	return p
}

func numProp(desc string) map[string]any {
	p := map[string]any{"type": "number"}
	if desc != "" {
		p["description"] = desc
	}
	return p
}

func arrProp(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func objProp(props map[string]any, required ...string) map[string]any {
	p := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		p["required"] = required
	}
	return p
}

// estimateProp is a researched value with provenance.
func estimateProp(value map[string]any) map[string]any {
	return objProp(map[string]any{
		"value":      value,
		"source":     strProp("Human-readable source of the value"),
		"citation":   strProp("URL or document reference backing the value"),
		"date":       strProp("ISO date of the source publication"),
		"confidence": numProp("1 for verified facts, otherwise estimate confidence in [0,1]"),
	}, "value", "source", "citation", "date", "confidence")
}

func sourceProp() map[string]any {
	return objProp(map[string]any{
		"title":     strProp(""),
		"publisher": strProp(""),
		"url":       strProp(""),
		"date":      strProp(""),
	}, "title", "publisher", "url", "date")
}

func masterDataSchema() genai.Schema {
	return genai.Schema{
		Name:        "company_master_data",
		Description: "Verified base facts for a company",
		Properties: map[string]any{
			"domain":      strProp("Primary web domain of the company"),
			"legalName":   strProp("Registered legal entity name"),
			"countryCode": strProp("ISO country code of the headquarters"),
			"address": objProp(map[string]any{
				"street":     strProp(""),
				"city":       strProp(""),
				"region":     strProp(""),
				"postalCode": strProp(""),
				"country":    strProp(""),
			}, "street", "city", "country"),
		},
		Required: []string{"domain", "legalName", "countryCode", "address"},
	}
}

func assessmentSchema() genai.Schema {
	return genai.Schema{
		Name:        "company_assessment",
		Description: "Quantitative assessment of a company",
		Properties: map[string]any{
			"domain":                      strProp("Primary web domain of the company"),
			"revenueInMio":                estimateProp(numProp("Annual revenue in million euros")),
			"revenueGrowth":               estimateProp(numProp("Year-over-year revenue growth rate")),
			"numberOfEmployees":           estimateProp(numProp("")),
			"numberOfITEmployees":         estimateProp(numProp("")),
			"digitalMaturity":             estimateProp(strProp("Qualitative digital maturity rating")),
			"itSpendInMio":                estimateProp(numProp("Annual IT spend in million euros")),
			"industrySpecificConstraints": estimateProp(arrProp(strProp(""))),
			"markets":                     estimateProp(arrProp(strProp("2-letter country code or \"global\""))),
			"industries":                  estimateProp(arrProp(strProp(""))),
		},
		Required: []string{
			"domain", "revenueInMio", "revenueGrowth", "numberOfEmployees",
			"numberOfITEmployees", "digitalMaturity", "itSpendInMio",
			"industrySpecificConstraints", "markets", "industries",
		},
	}
}

func competitorSetSchema() genai.Schema {
	return genai.Schema{
		Name:        "competing_companies",
		Description: "Competitors discovered for a customer",
		Properties: map[string]any{
			"customerDomain":    strProp("Domain of the customer the list belongs to"),
			"customerLegalName": strProp(""),
			"competition": arrProp(objProp(map[string]any{
				"competitionLegalName": strProp(""),
				"competitionDomain":    strProp("Primary web domain of the competitor"),
			}, "competitionLegalName", "competitionDomain")),
		},
		Required: []string{"customerDomain", "customerLegalName", "competition"},
	}
}

func marketAnalysisSchema() genai.Schema {
	return genai.Schema{
		Name:        "market_analysis",
		Description: "Market and demand analysis for one company",
		Properties: map[string]any{
			"domain":   strProp("Primary web domain of the analyzed company"),
			"analysis": strProp("Structured analytical narrative with inline citations"),
		},
		Required: []string{"domain", "analysis"},
	}
}

func newsListSchema() genai.Schema {
	return genai.Schema{
		Name:        "company_news_list",
		Description: "Recent dated news items about a company",
		Properties: map[string]any{
			"list": arrProp(objProp(map[string]any{
				"domain":  strProp("Domain of the company the item is about"),
				"source":  strProp("Source URL of the item"),
				"summary": strProp("At most 600 characters"),
				"date":    strProp("Publication date"),
			}, "domain", "source", "summary", "date")),
		},
		Required: []string{"list"},
	}
}

func competitionAnalysisSchema() genai.Schema {
	return genai.Schema{
		Name:        "competition_analysis",
		Description: "Comparison of one competitor against one customer",
		Properties: map[string]any{
			"competitionId":                 strProp("customerDomain|competitorDomain"),
			"customerDomain":                strProp(""),
			"competitorDomain":              strProp(""),
			"customerLegalName":             strProp(""),
			"competitorLegalName":           strProp(""),
			"summary":                       strProp("Short bullet summary, under 1200 chars"),
			"analysis":                      strProp("Full comparison narrative, under 3500 chars"),
			"strengths":                     arrProp(strProp("")),
			"weaknesses":                    arrProp(strProp("")),
			"nichePositioning":              strProp(""),
			"marketTrendsImpact":            arrProp(strProp("")),
			"customerExpectationsAlignment": arrProp(strProp("")),
			"sources":                       arrProp(sourceProp()),
		},
		Required: []string{
			"competitionId", "customerDomain", "competitorDomain",
			"customerLegalName", "competitorLegalName", "summary", "analysis",
			"strengths", "weaknesses", "nichePositioning",
			"marketTrendsImpact", "customerExpectationsAlignment", "sources",
		},
	}
}

func itStrategySchema() genai.Schema {
	return genai.Schema{
		Name:        "it_strategy",
		Description: "Business-driven IT strategies for a customer",
		Properties: map[string]any{
			"customerDomain":    strProp(""),
			"customerLegalName": strProp(""),
			"strategies": arrProp(objProp(map[string]any{
				"id":                       strProp(""),
				"name":                     strProp(""),
				"intent":                   strProp(""),
				"competitiveRationale":     strProp(""),
				"businessCapabilityImpact": strProp(""),
				"itCapabilityImplications": strProp(""),
				"riskIfNotPursued":         strProp(""),
				"timeHorizon":              strProp("one of: short, mid, long"),
				"evidenceIds":              arrProp(strProp("")),
			}, "id", "name", "intent", "timeHorizon", "evidenceIds")),
			"strengthAmplification":   arrProp(strProp("strategy ids or names")),
			"weaknessCompensation":    arrProp(strProp("strategy ids or names")),
			"newNicheDifferentiation": arrProp(strProp("strategy ids or names")),
			"sources":                 arrProp(sourceProp()),
		},
		Required: []string{
			"customerDomain", "customerLegalName", "strategies",
			"strengthAmplification", "weaknessCompensation",
			"newNicheDifferentiation", "sources",
		},
	}
}

func serviceMatchingSchema() genai.Schema {
	return genai.Schema{
		Name:        "service_matching",
		Description: "Mapping of IT strategies to vendor services",
		Properties: map[string]any{
			"customerDomain":    strProp(""),
			"customerLegalName": strProp(""),
			"itStrategyId":      strProp(""),
			"matches": arrProp(objProp(map[string]any{
				"strategyName":              strProp(""),
				"supportingServices":        arrProp(strProp("")),
				"valueContribution":         strProp(""),
				"entryLevelEngagementIdeas": arrProp(strProp("")),
				"gaps":                      arrProp(strProp("")),
			}, "strategyName", "supportingServices", "valueContribution")),
		},
		Required: []string{"customerDomain", "customerLegalName", "itStrategyId", "matches"},
	}
}

func meetingPrepSchema() genai.Schema {
	return genai.Schema{
		Name:        "sales_meeting_prep",
		Description: "Executive meeting briefing for a customer",
		Properties: map[string]any{
			"customerDomain":      strProp(""),
			"customerLegalName":   strProp(""),
			"itStrategyId":        strProp(""),
			"serviceMatchingId":   strProp(""),
			"executiveBriefing":   strProp(""),
			"strategicHypotheses": arrProp(strProp("")),
			"questionsToAsk":      arrProp(strProp("each tied to a strategy id or name")),
			"strategicImpulses":   arrProp(strProp("")),
			"pocIdeas": arrProp(objProp(map[string]any{
				"objective":       strProp(""),
				"scope":           strProp(""),
				"successCriteria": strProp(""),
			}, "objective", "scope", "successCriteria")),
		},
		Required: []string{
			"customerDomain", "customerLegalName", "itStrategyId",
			"serviceMatchingId", "executiveBriefing", "strategicHypotheses",
			"questionsToAsk", "strategicImpulses", "pocIdeas",
		},
	}
}

// FallbackMarkdownSchema constrains fallback document generation to a single
// markdown string.
func FallbackMarkdownSchema() genai.Schema {
	return genai.Schema{
		Name:        "document_markdown",
		Description: "Markdown expansion of a document summary",
		Properties: map[string]any{
			"markdown": strProp("The expanded markdown brief"),
		},
		Required: []string{"markdown"},
	}
}
