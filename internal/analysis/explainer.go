package analysis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ericksa/contractlens/internal/llm"
	"github.com/ericksa/contractlens/internal/logging"
)

const toneInstructions = `Use simple, conversational language, as if explaining to a farmer or a daily wage worker.
Avoid legal jargon completely. Use analogies from daily life (farming, the market, family).
Be direct about danger: name the concrete harm plainly instead of saying a term "may be prejudicial to your interests".
Keep each explanation to 2-3 sentences.`

type explanationWire struct {
	ClauseID    string `json:"clauseId"`
	Explanation string `json:"explanation"`
}

type explainEnvelope struct {
	Summary            string            `json:"summary" jsonschema:"description=Overall risk summary in the target language"`
	ClauseExplanations []explanationWire `json:"clauseExplanations"`
}

var explainSchema = llm.SchemaFor[explainEnvelope]("vernacular_explanation", "Simplified risk findings in the reader's language")

// Explainer restates a risk report in the reader's language.
type Explainer struct {
	gw     llm.Gateway
	model  string
	logger *zap.Logger
}

func NewExplainer(gw llm.Gateway, model string, logger *zap.Logger) *Explainer {
	return &Explainer{gw: gw, model: model, logger: logging.OrNop(logger).Named("analysis.explainer")}
}

// Explain only covers high and medium risk clauses. The base language is
// a reformat with no model call. The only error is an unsupported language.
func (e *Explainer) Explain(ctx context.Context, report RiskReport, lang Language) (BhashaOutput, error) {
	if !lang.Valid() {
		return BhashaOutput{}, fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, lang)
	}

	notable := make([]RiskedClause, 0, len(report.Clauses))
	for _, c := range report.Clauses {
		if c.RiskLevel.Notable() {
			notable = append(notable, c)
		}
	}

	if lang == BaseLanguage {
		out := BhashaOutput{
			Language:           lang,
			Summary:            report.ExecutiveSummary,
			ClauseExplanations: make([]ClauseExplanation, 0, len(notable)),
		}
		for _, c := range notable {
			out.ClauseExplanations = append(out.ClauseExplanations, ClauseExplanation{ClauseID: c.ID, Explanation: c.Explanation})
		}
		return out, nil
	}

	fallback := BhashaOutput{Language: lang, Summary: report.ExecutiveSummary, ClauseExplanations: []ClauseExplanation{}}

	resp, err := e.gw.Complete(ctx, llm.Request{
		Model: e.model,
		Messages: []llm.Message{
			llm.System(explainerPrompt(lang)),
			llm.User(explainerInput(report.ExecutiveSummary, notable)),
		},
		Temperature: 0.3,
		JSON:        true,
		Schema:      explainSchema,
		MaxTokens:   4096,
	})
	if err != nil {
		e.logger.Warn("explanation call failed", zap.String("language", string(lang)), zap.Error(err))
		return fallback, nil
	}

	payload := llm.Normalize(resp.Text, llm.KindObject)
	var env explainEnvelope
	if err := payload.Decode(&env); err != nil {
		e.logger.Warn("explanation reply unparseable", zap.String("language", string(lang)), zap.Error(err))
		return fallback, nil
	}

	out := fallback
	if s := strings.TrimSpace(env.Summary); s != "" {
		out.Summary = s
	}

	allowed := make(map[string]bool, len(notable))
	for _, c := range notable {
		allowed[c.ID] = true
	}
	dropped := 0
	for _, ex := range env.ClauseExplanations {
		id := strings.TrimSpace(ex.ClauseID)
		text := strings.TrimSpace(ex.Explanation)
		if !allowed[id] || text == "" {
			dropped++
			continue
		}
		// one explanation per clause
		allowed[id] = false
		out.ClauseExplanations = append(out.ClauseExplanations, ClauseExplanation{ClauseID: id, Explanation: text})
	}
	if dropped > 0 {
		e.logger.Debug("discarded explanations", zap.Int("count", dropped))
	}
	return out, nil
}

func explainerPrompt(lang Language) string {
	name := lang.Name()
	return fmt.Sprintf(`You are a legal translator helping common Indian people understand contract risks.
Translate the following legal analysis into %[1]s.
%[2]s

Return JSON with:
- summary: overall risk summary in %[1]s (3 sentences, simple language)
- clauseExplanations: array of {clauseId, explanation} in %[1]s, one per clause given

Return only valid JSON.`, name, toneInstructions)
}

func explainerInput(summary string, clauses []RiskedClause) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall summary to translate: %q\n\n", summary)
	if len(clauses) == 0 {
		b.WriteString("There are no clauses to translate; return an empty clauseExplanations array.")
		return b.String()
	}
	b.WriteString("Clauses to translate:\n")
	for _, c := range clauses {
		fmt.Fprintf(&b, "ID: %s | Risk: %s | Explanation: %s\n", c.ID, c.RiskLevel, c.Explanation)
	}
	return b.String()
}
