package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ericksa/contractlens/internal/llm"
	"github.com/ericksa/contractlens/internal/logging"
)

const (
	scoreExcerptLimit = 4000

	defaultOverallScore  = 50
	defaultExplanation   = "No issues found"
	noCitation           = "N/A"
	defaultSummary       = "Risk analysis complete."
	failedSummary        = "Failed to analyze risk."
	scorerMaxReplyTokens = 8192
)

// LegalContext is the statutory reference text given to the scorer.
const LegalContext = `Relevant Indian laws for reference:
- Indian Contract Act 1872: Section 23 (unlawful agreements), Section 27 (restraint of trade)
- Rent Control Acts: state-specific, protect tenants from arbitrary eviction
- Transfer of Property Act 1882: governs lease agreements and notice periods
- IT Act 2000: Section 43A (data protection), Section 72A (privacy breach)
- IPC Section 415: cheating and dishonest inducement
- Payment of Wages Act 1936: protects against arbitrary wage deductions
- Industrial Disputes Act 1947: protects against unfair termination
- Consumer Protection Act 2019: unfair trade practices
- DPDP Act 2023: digital personal data protection`

// ExpectedClauses lists clause types a document of each category should
// contain. Absent ones are reported as missing.
var ExpectedClauses = map[string][]string{
	"rental": {
		"notice_period",
		"maintenance_responsibility",
		"security_deposit_return",
		"tds_on_rent",
		"subletting_rights",
	},
	"employment": {
		"notice_period",
		"severance_pay",
		"non_compete_scope",
		"ip_ownership_limits",
		"performance_review_process",
	},
	"loan": {
		"prepayment_penalty_cap",
		"interest_rate_change_notice",
		"collateral_release_conditions",
	},
}

type assessmentWire struct {
	ClauseID          string   `json:"clauseId" jsonschema:"description=Id of the assessed input clause"`
	RiskLevel         string   `json:"riskLevel" jsonschema:"enum=high,enum=medium,enum=low"`
	RiskScore         *flexInt `json:"riskScore" jsonschema:"description=1 to 10"`
	Explanation       *string  `json:"explanation"`
	LegalCitation     *string  `json:"legalCitation"`
	RedlinedEdit      *string  `json:"redlinedEdit"`
	MissingProtection *string  `json:"missingProtection"`
}

type scoreEnvelope struct {
	Clauses          []assessmentWire `json:"clauses"`
	OverallScore     int              `json:"overallScore" jsonschema:"description=0 to 100"`
	MissingClauses   []string         `json:"missingClauses"`
	ExecutiveSummary string           `json:"executiveSummary"`
}

// documentFields is the lenient decode target for the document-level
// part of a reply; absent fields stay nil.
type documentFields struct {
	OverallScore     *flexInt `json:"overallScore"`
	MissingClauses   []string `json:"missingClauses"`
	ExecutiveSummary *string  `json:"executiveSummary"`
}

var scoreSchema = llm.SchemaFor[scoreEnvelope]("risk_assessment", "Per-clause risk assessment and document-level findings")

// Scorer assesses extracted clauses in one batched call.
type Scorer struct {
	gw     llm.Gateway
	model  string
	logger *zap.Logger
}

func NewScorer(gw llm.Gateway, model string, logger *zap.Logger) *Scorer {
	return &Scorer{gw: gw, model: model, logger: logging.OrNop(logger).Named("analysis.scorer")}
}

// Score returns a report with exactly one RiskedClause per input clause,
// in input order. It never fails; a failed call yields FailedReport.
func (s *Scorer) Score(ctx context.Context, clauses []ExtractedClause, fullText string) RiskReport {
	clauseJSON, err := json.MarshalIndent(clauses, "", "  ")
	if err != nil {
		s.logger.Error("marshal clauses", zap.Error(err))
		return FailedReport()
	}

	resp, err := s.gw.Complete(ctx, llm.Request{
		Model: s.model,
		Messages: []llm.Message{
			llm.System(scorerPrompt()),
			llm.User(fmt.Sprintf("Analyze these clauses:\n%s\n\nFull contract snippet for context:\n%s",
				clauseJSON, truncate(fullText, scoreExcerptLimit))),
		},
		Temperature: 0.2,
		JSON:        true,
		Schema:      scoreSchema,
		MaxTokens:   scorerMaxReplyTokens,
	})
	if err != nil {
		s.logger.Warn("scoring call failed", zap.Int("clauses", len(clauses)), zap.Error(err))
		return FailedReport()
	}

	var fields documentFields
	doc := llm.Normalize(resp.Text, llm.KindObject)
	list := llm.Normalize(resp.Text, llm.KindArray, "clauses", "assessments", "data")
	if !doc.OK() && !list.OK() {
		s.logger.Warn("scoring reply unparseable", zap.Int("reply_len", len(resp.Text)))
		return FailedReport()
	}
	if doc.OK() {
		if err := doc.Decode(&fields); err != nil {
			s.logger.Debug("document-level fields undecodable", zap.Error(err))
			fields = documentFields{}
		}
	}

	return merge(clauses, decodeAssessments(list, s.logger), fields)
}

// FailedReport is the report for a scoring call that produced nothing usable.
func FailedReport() RiskReport {
	return RiskReport{
		OverallScore:     0,
		Clauses:          []RiskedClause{},
		MissingClauses:   []string{},
		ExecutiveSummary: failedSummary,
	}
}

func decodeAssessments(list llm.Payload, logger *zap.Logger) []assessmentWire {
	if !list.OK() {
		return nil
	}
	var items []json.RawMessage
	if err := list.Decode(&items); err != nil {
		return nil
	}
	out := make([]assessmentWire, 0, len(items))
	for i, item := range items {
		var a assessmentWire
		if err := json.Unmarshal(item, &a); err != nil {
			logger.Debug("skipping malformed assessment", zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, a)
	}
	return out
}

// merge joins assessments onto the extracted clauses. Every clause gets
// exactly one entry; unmatched clauses get the lowest-risk default. When
// the model assesses an id twice the first assessment wins.
func merge(clauses []ExtractedClause, assessments []assessmentWire, fields documentFields) RiskReport {
	byID := make(map[string]assessmentWire, len(assessments))
	for _, a := range assessments {
		id := strings.TrimSpace(a.ClauseID)
		if _, dup := byID[id]; !dup {
			byID[id] = a
		}
	}

	risked := make([]RiskedClause, 0, len(clauses))
	for _, c := range clauses {
		a, ok := byID[c.ID]
		if !ok {
			risked = append(risked, defaultRisk(c))
			continue
		}
		risked = append(risked, applyAssessment(c, a))
	}

	report := RiskReport{
		OverallScore:     defaultOverallScore,
		Clauses:          risked,
		MissingClauses:   normalizeMissing(fields.MissingClauses),
		ExecutiveSummary: defaultSummary,
	}
	if fields.OverallScore != nil {
		report.OverallScore = clamp(int(*fields.OverallScore), 0, 100)
	}
	if v := nonEmpty(fields.ExecutiveSummary); v != "" {
		report.ExecutiveSummary = v
	}
	return report
}

func defaultRisk(c ExtractedClause) RiskedClause {
	return RiskedClause{
		ExtractedClause: c,
		RiskLevel:       RiskLow,
		RiskScore:       1,
		Explanation:     defaultExplanation,
		LegalCitation:   noCitation,
		RedlinedEdit:    c.OriginalText,
	}
}

func applyAssessment(c ExtractedClause, a assessmentWire) RiskedClause {
	rc := defaultRisk(c)
	rc.RiskLevel = ParseRiskLevel(a.RiskLevel)
	if a.RiskScore != nil {
		rc.RiskScore = int(*a.RiskScore)
	}
	rc.RiskScore = rc.RiskLevel.ClampScore(rc.RiskScore)

	if v := nonEmpty(a.Explanation); v != "" {
		rc.Explanation = v
	}
	if v := nonEmpty(a.LegalCitation); v != "" {
		rc.LegalCitation = v
	}
	if v := nonEmpty(a.RedlinedEdit); v != "" {
		rc.RedlinedEdit = v
	}
	rc.MissingProtection = nonEmpty(a.MissingProtection)
	return rc
}

func nonEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func normalizeMissing(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		key := snakeCase(n)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

func scorerPrompt() string {
	var b strings.Builder
	b.WriteString(`You are a legal risk analyst specializing in Indian contracts, protecting the interests of common people (tenants, employees, borrowers).

`)
	b.WriteString(LegalContext)
	b.WriteString(`

For each clause provided, return an assessment with:
- clauseId: the matching input id
- riskLevel: "high" | "medium" | "low"
- riskScore: 1-10 (10 = most dangerous for the weaker party; high is 7-10, medium 4-6, low 1-3)
- explanation: why this is risky, in simple terms
- legalCitation: the specific Indian law or section this violates or relates to, or "N/A"
- redlinedEdit: suggested replacement text that protects the user
- missingProtection: a key protection this clause lacks, or an empty string

Also return:
- overallScore: 0-100 risk score for the whole document
- missingClauses: important clauses ABSENT from the contract, as snake_case names
- executiveSummary: 3-4 sentence plain English summary of the contract's risk level

Infer whether the document is a rental, employment or loan agreement and check it against the expected clauses:
`)
	categories := make([]string, 0, len(ExpectedClauses))
	for k := range ExpectedClauses {
		categories = append(categories, k)
	}
	sort.Strings(categories)
	for _, k := range categories {
		fmt.Fprintf(&b, "- %s: %s\n", k, strings.Join(ExpectedClauses[k], ", "))
	}
	b.WriteString("\nReturn only valid JSON, no markdown.")
	return b.String()
}
