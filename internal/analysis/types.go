// Package analysis runs the contract risk pipeline: summarize, extract
// clauses, score them against statutory references, then explain the
// findings in the reader's language.
package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Category is the fixed clause category enumeration.
type Category string

const (
	CategoryTermination  Category = "termination"
	CategoryPenalty      Category = "penalty"
	CategoryIPAssignment Category = "ip_assignment"
	CategoryLiability    Category = "liability"
	CategoryPayment      Category = "payment"
	CategoryNotice       Category = "notice"
	CategoryOther        Category = "other"
)

// Categories lists every valid category in prompt order.
var Categories = []Category{
	CategoryTermination,
	CategoryPenalty,
	CategoryIPAssignment,
	CategoryLiability,
	CategoryPayment,
	CategoryNotice,
	CategoryOther,
}

// ParseCategory maps free-form model output onto the enumeration.
// Unknown values become CategoryOther.
func ParseCategory(s string) Category {
	c := Category(snakeCase(s))
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryOther
}

// RiskLevel is the categorical severity of a clause.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// ParseRiskLevel maps model output onto the enumeration. Unknown values
// become RiskLow.
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskHigh:
		return RiskHigh
	case RiskMedium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Band returns the inclusive score range consistent with the level.
func (l RiskLevel) Band() (lo, hi int) {
	switch l {
	case RiskHigh:
		return 7, 10
	case RiskMedium:
		return 4, 6
	default:
		return 1, 3
	}
}

// ClampScore forces score into the level's band.
func (l RiskLevel) ClampScore(score int) int {
	lo, hi := l.Band()
	return clamp(score, lo, hi)
}

// Notable reports whether clauses at this level get vernacular explanations.
func (l RiskLevel) Notable() bool { return l == RiskHigh || l == RiskMedium }

// Language is a supported explanation language code.
type Language string

const (
	LangEnglish Language = "en"
	LangHindi   Language = "hi"
	LangMarathi Language = "mr"
	LangTamil   Language = "ta"
	LangBengali Language = "bn"
	LangTelugu  Language = "te"

	// BaseLanguage is the language the scorer already writes in.
	BaseLanguage = LangEnglish
)

var languageNames = map[Language]string{
	LangEnglish: "English",
	LangHindi:   "Hindi",
	LangMarathi: "Marathi",
	LangTamil:   "Tamil",
	LangBengali: "Bengali",
	LangTelugu:  "Telugu",
}

// Languages returns the supported codes.
func Languages() []Language {
	return []Language{LangEnglish, LangHindi, LangMarathi, LangTamil, LangBengali, LangTelugu}
}

// Valid reports whether l is a supported code.
func (l Language) Valid() bool {
	_, ok := languageNames[l]
	return ok
}

// Name is the English name of the language.
func (l Language) Name() string { return languageNames[l] }

// ParseLanguage validates a language code. An empty code is the base language.
func ParseLanguage(s string) (Language, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return BaseLanguage, nil
	}
	l := Language(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, s)
	}
	return l, nil
}

// ExtractedClause is one clause segmented out of the source document.
type ExtractedClause struct {
	ID           string   `json:"id" yaml:"id"`
	Title        string   `json:"title" yaml:"title"`
	OriginalText string   `json:"originalText" yaml:"originalText"`
	Category     Category `json:"category" yaml:"category"`
}

// RiskedClause is an extracted clause with its risk assessment.
type RiskedClause struct {
	ExtractedClause `yaml:",inline"`

	RiskLevel         RiskLevel `json:"riskLevel" yaml:"riskLevel"`
	RiskScore         int       `json:"riskScore" yaml:"riskScore"`
	Explanation       string    `json:"explanation" yaml:"explanation"`
	LegalCitation     string    `json:"legalCitation" yaml:"legalCitation"`
	RedlinedEdit      string    `json:"redlinedEdit" yaml:"redlinedEdit"`
	MissingProtection string    `json:"missingProtection,omitempty" yaml:"missingProtection,omitempty"`
}

// RiskReport is the aggregate assessment of one document.
type RiskReport struct {
	OverallScore     int            `json:"overallScore" yaml:"overallScore"`
	Clauses          []RiskedClause `json:"clauses" yaml:"clauses"`
	MissingClauses   []string       `json:"missingClauses" yaml:"missingClauses"`
	ExecutiveSummary string         `json:"executiveSummary" yaml:"executiveSummary"`
}

// ClauseExplanation is a plain-language explanation of one clause.
type ClauseExplanation struct {
	ClauseID    string `json:"clauseId" yaml:"clauseId"`
	Explanation string `json:"explanation" yaml:"explanation"`
}

// BhashaOutput is the vernacular restatement of a report.
type BhashaOutput struct {
	Language           Language            `json:"language" yaml:"language"`
	Summary            string              `json:"summary" yaml:"summary"`
	ClauseExplanations []ClauseExplanation `json:"clauseExplanations" yaml:"clauseExplanations"`
}

// Output is the full result of one pipeline run.
type Output struct {
	DocumentSummary     string            `json:"documentSummary" yaml:"documentSummary"`
	Clauses             []ExtractedClause `json:"clauses" yaml:"clauses"`
	RiskReport          RiskReport        `json:"riskReport" yaml:"riskReport"`
	BhashaOutput        BhashaOutput      `json:"bhashaOutput" yaml:"bhashaOutput"`
	PowerImbalanceScore int               `json:"powerImbalanceScore" yaml:"powerImbalanceScore"`
}

// flexInt accepts a JSON number, a numeric string, or a float and rounds
// it to an int. Anything else leaves the value unset.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexInt(roundHalfUp(n))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = flexInt(roundHalfUp(v))
		}
	}
	return nil
}

func snakeCase(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '/', '.':
			return '_'
		}
		return r
	}, s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundHalfUp(f float64) int {
	if f < 0 {
		return -int(-f + 0.5)
	}
	return int(f + 0.5)
}

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
