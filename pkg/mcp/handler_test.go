package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericksa/contractlens/internal/analysis"
	"github.com/ericksa/contractlens/internal/audit"
	"github.com/ericksa/contractlens/internal/negotiation"
	"github.com/ericksa/contractlens/internal/storage"
)

type fakeAnalyzer struct{}

func (fakeAnalyzer) Run(ctx context.Context, in analysis.Input) (analysis.Output, error) {
	if in.FileText == "" {
		return analysis.Output{}, fmt.Errorf("%w: document text is empty", analysis.ErrInvalidInput)
	}
	return analysis.Output{
		DocumentSummary:     "summary of " + in.FileName,
		RiskReport:          analysis.RiskReport{OverallScore: 71},
		BhashaOutput:        analysis.BhashaOutput{Language: in.Language},
		PowerImbalanceScore: 80,
	}, nil
}

type fakeNegotiator struct {
	got negotiation.Request
}

func (f *fakeNegotiator) Negotiate(ctx context.Context, req negotiation.Request) (negotiation.Result, error) {
	f.got = req
	return negotiation.Result{Clause: req.Clause, FinalAgreedText: req.Clause.RedlinedEdit, WasResolved: true, Outcome: negotiation.OutcomeAgreed}, nil
}

type memoryAudit struct {
	mu      sync.Mutex
	records []audit.Record
}

func (m *memoryAudit) Log(ctx context.Context, rec audit.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

func newTestHandler(t *testing.T) (*Handler, *fakeNegotiator, *memoryAudit) {
	t.Helper()
	reports, err := storage.OpenReports(context.Background(), storage.DriverSQLite, ":memory:", nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { reports.Close() })

	neg := &fakeNegotiator{}
	log := &memoryAudit{}
	h := NewHandler(Options{
		Analyzer:   fakeAnalyzer{},
		Negotiator: neg,
		Reports:    reports,
		Audit:      log,
		MaxRounds:  5,
	})
	return h, neg, log
}

func connect(t *testing.T, h *Handler) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	_, err := h.Server().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestHandler_ListTools(t *testing.T) {
	h, _, _ := newTestHandler(t)
	session := connect(t, h)

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolAnalyze, ToolNegotiate, ToolHistory}, names)
}

func TestHandler_AnalyzeThenHistory(t *testing.T) {
	h, _, log := newTestHandler(t)
	session := connect(t, h)
	ctx := context.Background()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: ToolAnalyze,
		Arguments: map[string]any{
			"fileText": "The landlord may terminate at any time without notice.",
			"fileName": "lease.txt",
			"language": "mr",
			"userId":   "u1",
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var analyzed analyzeResult
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &analyzed))
	assert.Equal(t, 71, analyzed.RiskReport.OverallScore)
	assert.Equal(t, analysis.LangMarathi, analyzed.BhashaOutput.Language)
	require.NotEmpty(t, analyzed.ReportID)

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolHistory,
		Arguments: map[string]any{"userId": "u1"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var list []storage.StoredReport
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &list))
	require.Len(t, list, 1)
	assert.Equal(t, analyzed.ReportID, list[0].ID)

	log.mu.Lock()
	defer log.mu.Unlock()
	require.Len(t, log.records, 2)
	assert.Equal(t, ToolAnalyze, log.records[0].Action)
	assert.Equal(t, "lease.txt", log.records[0].Subject)
	assert.Equal(t, ToolHistory, log.records[1].Action)
}

func TestHandler_ToolErrors(t *testing.T) {
	h, _, _ := newTestHandler(t)
	session := connect(t, h)
	ctx := context.Background()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolAnalyze,
		Arguments: map[string]any{"fileText": "x", "fileName": "a.txt", "language": "fr"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "unsupported language")

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolHistory,
		Arguments: map[string]any{"userId": "u1", "reportId": "missing"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "not found")
}

func TestHandler_NegotiateDefaults(t *testing.T) {
	h, neg, _ := newTestHandler(t)

	clause := analysis.RiskedClause{
		ExtractedClause: analysis.ExtractedClause{ID: "c3", OriginalText: "No refund.", Category: analysis.CategoryPayment},
		RiskLevel:       analysis.RiskHigh,
		RiskScore:       9,
		RedlinedEdit:    "Refund within 30 days.",
	}
	subject, _, out, err := h.negotiate(context.Background(), NegotiateInput{Clause: clause, Archetype: "bank_loan_officer"})
	require.NoError(t, err)
	assert.Equal(t, "c3", subject)
	assert.Equal(t, 5, neg.got.MaxRounds)
	assert.Equal(t, negotiation.BankLoanOfficer, neg.got.Archetype)
	assert.Equal(t, "Refund within 30 days.", out.(negotiation.Result).FinalAgreedText)

	_, _, _, err = h.negotiate(context.Background(), NegotiateInput{Clause: clause, Archetype: "pirate"})
	assert.ErrorIs(t, err, analysis.ErrInvalidInput)
}

func TestHandler_HistoryValidation(t *testing.T) {
	h := NewHandler(Options{Analyzer: fakeAnalyzer{}})
	_, _, _, err := h.history(context.Background(), HistoryInput{UserID: "u"})
	assert.ErrorIs(t, err, errNoHistory)

	h2, _, _ := newTestHandler(t)
	_, _, _, err = h2.history(context.Background(), HistoryInput{})
	assert.ErrorIs(t, err, storage.ErrNoUser)
}
