package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericksa/contractlens/internal/analysis"
)

func TestSealer_RoundTrip(t *testing.T) {
	s, err := NewSealer("correct horse battery staple", "")
	require.NoError(t, err)

	sealed, err := s.Seal([]byte(`{"overallScore":42}`))
	require.NoError(t, err)
	parts := strings.Split(sealed, ":")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], sealIVLen*2)
	assert.Len(t, parts[1], sealTagLen*2)

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"overallScore":42}`, string(plain))

	again, err := s.Seal([]byte(`{"overallScore":42}`))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "fresh iv per seal")
}

func TestSealer_LegacyPlaintext(t *testing.T) {
	s, err := NewSealer("k", "")
	require.NoError(t, err)

	for _, legacy := range []string{`{"a":1}`, "plain text", "a:b:c", ""} {
		got, err := s.Open(legacy)
		require.NoError(t, err, legacy)
		assert.Equal(t, legacy, string(got))
	}
}

func TestSealer_WrongKey(t *testing.T) {
	a, err := NewSealer("key-a", "")
	require.NoError(t, err)
	b, err := NewSealer("key-b", "")
	require.NoError(t, err)

	sealed, err := a.Seal([]byte("secret"))
	require.NoError(t, err)
	_, err = b.Open(sealed)
	assert.ErrorIs(t, err, ErrSealBroken)

	var none *Sealer
	_, err = none.Open(sealed)
	assert.ErrorIs(t, err, ErrSealBroken)
}

func TestSealer_EmptySecret(t *testing.T) {
	_, err := NewSealer("", "")
	assert.Error(t, err)
}

func newTestStore(t *testing.T, sealer *Sealer) *ReportStore {
	t.Helper()
	s, err := OpenReports(context.Background(), DriverSQLite, ":memory:", sealer, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleOutput(score int) analysis.Output {
	return analysis.Output{
		DocumentSummary: "A rental agreement.",
		Clauses: []analysis.ExtractedClause{
			{ID: "c1", Title: "Term", OriginalText: "Landlord may evict.", Category: analysis.CategoryTermination},
		},
		RiskReport: analysis.RiskReport{
			OverallScore:     score,
			Clauses:          []analysis.RiskedClause{},
			MissingClauses:   []string{"tds_on_rent"},
			ExecutiveSummary: "Risky.",
		},
		BhashaOutput:        analysis.BhashaOutput{Language: analysis.LangHindi, Summary: "जोखिम", ClauseExplanations: []analysis.ClauseExplanation{}},
		PowerImbalanceScore: score,
	}
}

func TestReportStore_SaveListGet(t *testing.T) {
	sealer, err := NewSealer("test-secret", "")
	require.NoError(t, err)
	store := newTestStore(t, sealer)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	var ids []string
	for i := 1; i <= 3; i++ {
		id, err := store.Save(ctx, "user-1", fmt.Sprintf("lease-%d.pdf", i), sampleOutput(i*10))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err = store.Save(ctx, "user-2", "other.pdf", sampleOutput(99))
	require.NoError(t, err)

	list, err := store.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, "lease-3.pdf", list[0].FileName)
	assert.Equal(t, 30, list[0].OverallScore)
	assert.Equal(t, "hi", list[0].Language)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))
	assert.Equal(t, sampleOutput(30), list[0].Output)

	got, err := store.Get(ctx, "user-1", ids[0])
	require.NoError(t, err)
	assert.Equal(t, "lease-1.pdf", got.FileName)

	_, err = store.Get(ctx, "user-2", ids[0])
	assert.ErrorIs(t, err, ErrNotFound)

	empty, err := store.List(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestReportStore_PayloadIsSealed(t *testing.T) {
	sealer, err := NewSealer("test-secret", "")
	require.NoError(t, err)
	store := newTestStore(t, sealer)
	ctx := context.Background()

	id, err := store.Save(ctx, "u", "lease.pdf", sampleOutput(50))
	require.NoError(t, err)

	var payload string
	require.NoError(t, store.DB().QueryRowContext(ctx, "SELECT payload FROM reports WHERE id = ?", id).Scan(&payload))
	assert.NotContains(t, payload, "rental agreement")
	assert.Len(t, strings.Split(payload, ":"), 3)
}

func TestReportStore_ReadsLegacyPlaintextRows(t *testing.T) {
	sealer, err := NewSealer("test-secret", "")
	require.NoError(t, err)
	store := newTestStore(t, sealer)
	ctx := context.Background()

	_, err = store.DB().ExecContext(ctx,
		`INSERT INTO reports (id, user_id, file_name, language, overall_score, power_imbalance, payload, created_at)
		 VALUES ('legacy', 'u', 'old.pdf', 'en', 12, 12, '{"documentSummary":"old"}', 1)`)
	require.NoError(t, err)

	got, err := store.Get(ctx, "u", "legacy")
	require.NoError(t, err)
	assert.Equal(t, "old", got.Output.DocumentSummary)
}

func TestReportStore_ListSkipsUnreadableRows(t *testing.T) {
	sealer, err := NewSealer("test-secret", "")
	require.NoError(t, err)
	other, err := NewSealer("rotated-secret", "")
	require.NoError(t, err)
	store := newTestStore(t, sealer)
	ctx := context.Background()

	id, err := store.Save(ctx, "u", "good.pdf", sampleOutput(40))
	require.NoError(t, err)

	foreign, err := other.Seal([]byte(`{"documentSummary":"foreign"}`))
	require.NoError(t, err)
	insert := `INSERT INTO reports (id, user_id, file_name, language, overall_score, power_imbalance, payload, created_at)
		 VALUES (?, 'u', 'bad.pdf', 'en', 0, 0, ?, 1)`
	_, err = store.DB().ExecContext(ctx, insert, "wrong-key", foreign)
	require.NoError(t, err)
	_, err = store.DB().ExecContext(ctx, insert, "garbled", "not json at all")
	require.NoError(t, err)

	list, err := store.List(ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	_, err = store.Get(ctx, "u", "wrong-key")
	assert.ErrorIs(t, err, ErrSealBroken)
	_, err = store.Get(ctx, "u", "garbled")
	assert.ErrorIs(t, err, ErrCorruptReport)
}

func TestReportStore_Validation(t *testing.T) {
	store := newTestStore(t, nil)
	_, err := store.Save(context.Background(), "  ", "a.pdf", sampleOutput(1))
	assert.ErrorIs(t, err, ErrNoUser)

	_, err = OpenReports(context.Background(), "mysql", "", nil, nil)
	assert.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "documents/user-1/abc/lease.pdf", ObjectKey("user-1", "abc", "lease.pdf"))
	assert.Equal(t, "documents/anonymous/abc/passwd", ObjectKey("", "abc", "../../etc/passwd"))
	assert.Equal(t, "documents/a_b/abc/document", ObjectKey("a/b", "abc", ".."))
	assert.Equal(t, "documents/u/abc/scan.pdf", ObjectKey("u", "abc", `C:\Users\me\scan.pdf`))
}
