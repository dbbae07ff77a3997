package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ericksa/contractlens/internal/llm"
	"github.com/ericksa/contractlens/internal/logging"
)

const extractInputLimit = 12000

const extractorPrompt = `You are a legal clause extraction agent for Indian contracts.
Extract ALL individual clauses from the document, in the order they appear.
Each clause must have:
- id: unique string like "clause_1"
- title: short name of the clause
- originalText: the exact clause text
- category: one of termination | penalty | ip_assignment | liability | payment | notice | other

Return only JSON of the form {"clauses": [...]}, no markdown, no explanation.`

type clauseWire struct {
	ID           string `json:"id" jsonschema:"description=Unique identifier such as clause_1"`
	Title        string `json:"title" jsonschema:"description=Short name of the clause"`
	OriginalText string `json:"originalText" jsonschema:"description=Exact clause text"`
	Category     string `json:"category" jsonschema:"enum=termination,enum=penalty,enum=ip_assignment,enum=liability,enum=payment,enum=notice,enum=other"`
}

type extractionEnvelope struct {
	Clauses []clauseWire `json:"clauses"`
}

var extractionSchema = llm.SchemaFor[extractionEnvelope]("clause_extraction", "Clauses extracted from a contract in document order")

// Extractor segments a document into categorized clauses.
type Extractor struct {
	gw     llm.Gateway
	model  string
	logger *zap.Logger
}

func NewExtractor(gw llm.Gateway, model string, logger *zap.Logger) *Extractor {
	return &Extractor{gw: gw, model: model, logger: logging.OrNop(logger).Named("analysis.extractor")}
}

// Extract returns clauses in model order. Any failure yields an empty,
// non-nil slice.
func (e *Extractor) Extract(ctx context.Context, text string) []ExtractedClause {
	resp, err := e.gw.Complete(ctx, llm.Request{
		Model: e.model,
		Messages: []llm.Message{
			llm.System(extractorPrompt),
			llm.User("Extract all clauses from this contract:\n\n" + truncate(text, extractInputLimit)),
		},
		Temperature: 0.1,
		JSON:        true,
		Schema:      extractionSchema,
		MaxTokens:   8192,
	})
	if err != nil {
		e.logger.Warn("extraction call failed", zap.Error(err))
		return []ExtractedClause{}
	}

	payload := llm.Normalize(resp.Text, llm.KindArray, "clauses", "data")
	if !payload.OK() {
		e.logger.Warn("extraction reply had no clause list", zap.Int("reply_len", len(resp.Text)))
		return []ExtractedClause{}
	}

	var items []json.RawMessage
	if err := payload.Decode(&items); err != nil {
		e.logger.Warn("extraction reply undecodable", zap.Error(err))
		return []ExtractedClause{}
	}

	clauses := make([]ExtractedClause, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		var w clauseWire
		if err := json.Unmarshal(item, &w); err != nil {
			e.logger.Debug("skipping malformed clause", zap.Int("index", i), zap.Error(err))
			continue
		}
		body := strings.TrimSpace(w.OriginalText)
		if body == "" {
			continue
		}
		clauses = append(clauses, ExtractedClause{
			ID:           uniqueID(strings.TrimSpace(w.ID), len(clauses)+1, seen),
			Title:        strings.TrimSpace(w.Title),
			OriginalText: body,
			Category:     ParseCategory(w.Category),
		})
	}

	e.logger.Debug("clauses extracted",
		zap.Int("count", len(clauses)),
		zap.String("shape", payload.Shape),
	)
	return clauses
}

// uniqueID keeps ids unique within one extraction, suffixing _2, _3 and
// so on when the model repeats one.
func uniqueID(id string, position int, seen map[string]bool) string {
	if id == "" {
		id = fmt.Sprintf("clause_%d", position)
	}
	candidate := id
	for n := 2; seen[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", id, n)
	}
	seen[candidate] = true
	return candidate
}
