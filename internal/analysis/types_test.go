package analysis

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"termination":   CategoryTermination,
		" Payment ":     CategoryPayment,
		"IP Assignment": CategoryIPAssignment,
		"ip-assignment": CategoryIPAssignment,
		"NOTICE":        CategoryNotice,
		"indemnity":     CategoryOther,
		"":              CategoryOther,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseCategory(in), "input %q", in)
	}
}

func TestParseRiskLevel(t *testing.T) {
	assert.Equal(t, RiskHigh, ParseRiskLevel("HIGH"))
	assert.Equal(t, RiskMedium, ParseRiskLevel(" medium "))
	assert.Equal(t, RiskLow, ParseRiskLevel("low"))
	assert.Equal(t, RiskLow, ParseRiskLevel("critical"))
	assert.Equal(t, RiskLow, ParseRiskLevel(""))
}

func TestRiskLevel_ClampScore(t *testing.T) {
	assert.Equal(t, 7, RiskHigh.ClampScore(2))
	assert.Equal(t, 9, RiskHigh.ClampScore(9))
	assert.Equal(t, 10, RiskHigh.ClampScore(14))
	assert.Equal(t, 4, RiskMedium.ClampScore(0))
	assert.Equal(t, 6, RiskMedium.ClampScore(8))
	assert.Equal(t, 1, RiskLow.ClampScore(0))
	assert.Equal(t, 3, RiskLow.ClampScore(9))
}

func TestParseLanguage(t *testing.T) {
	l, err := ParseLanguage("")
	require.NoError(t, err)
	assert.Equal(t, BaseLanguage, l)

	l, err = ParseLanguage("HI")
	require.NoError(t, err)
	assert.Equal(t, LangHindi, l)
	assert.Equal(t, "Hindi", l.Name())

	_, err = ParseLanguage("fr")
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Len(t, Languages(), 6)
	for _, l := range Languages() {
		assert.True(t, l.Valid())
	}
}

func TestTruncate_RuneSafe(t *testing.T) {
	s := strings.Repeat("क", 10)
	out := truncate(s, 4)
	assert.Equal(t, 4, len([]rune(out)))
	assert.Equal(t, "abc", truncate("abc", 8))
}

func TestFlexInt(t *testing.T) {
	var v struct {
		A flexInt `json:"a"`
		B flexInt `json:"b"`
		C flexInt `json:"c"`
		D flexInt `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":7,"b":"8","c":6.5,"d":true}`), &v))
	assert.Equal(t, flexInt(7), v.A)
	assert.Equal(t, flexInt(8), v.B)
	assert.Equal(t, flexInt(7), v.C)
	assert.Equal(t, flexInt(0), v.D)
}

func TestRiskedClause_JSONIsFlat(t *testing.T) {
	rc := RiskedClause{
		ExtractedClause: ExtractedClause{ID: "c1", Title: "Term", OriginalText: "text", Category: CategoryTermination},
		RiskLevel:       RiskHigh,
		RiskScore:       8,
	}
	b, err := json.Marshal(rc)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "c1", m["id"])
	assert.Equal(t, "high", m["riskLevel"])
	assert.NotContains(t, m, "missingProtection")
}
