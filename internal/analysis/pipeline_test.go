package analysis

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericksa/contractlens/internal/llm"
	"github.com/ericksa/contractlens/internal/llm/llmtest"
)

const leaseText = "This rental agreement is made between the landlord and the tenant for a period of eleven months."

const extractReply = `{"clauses":[
	{"id":"c1","title":"Termination","originalText":"Landlord may evict without notice.","category":"termination"},
	{"id":"c2","title":"Rent","originalText":"Rent is due monthly.","category":"payment"}
]}`

const scoreReply = `{"clauses":[
	{"clauseId":"c1","riskLevel":"high","riskScore":8,"explanation":"Arbitrary eviction.","legalCitation":"Rent Control Act","redlinedEdit":"30 days notice required."}
],"overallScore":64,"missingClauses":["tds_on_rent"],"executiveSummary":"One serious issue."}`

func TestPipeline_Run(t *testing.T) {
	stub := llmtest.Texts(
		"A rental agreement.",
		extractReply,
		scoreReply,
		`{"summary":"एक गंभीर समस्या","clauseExplanations":[{"clauseId":"c1","explanation":"बिना सूचना निकाला जा सकता है"}]}`,
	)

	type step struct {
		label   string
		percent int
	}
	var steps []step

	out, err := NewPipeline(stub, Options{Model: "test-model"}).Run(context.Background(), Input{
		FileText: leaseText,
		FileName: "lease.txt",
		Language: LangHindi,
		Progress: func(label string, percent int) { steps = append(steps, step{label, percent}) },
	})
	require.NoError(t, err)

	assert.Equal(t, "A rental agreement.", out.DocumentSummary)
	require.Len(t, out.Clauses, 2)
	require.Len(t, out.RiskReport.Clauses, len(out.Clauses))
	assert.Equal(t, RiskLow, out.RiskReport.Clauses[1].RiskLevel)
	assert.Equal(t, 80, out.PowerImbalanceScore)
	assert.Equal(t, LangHindi, out.BhashaOutput.Language)
	require.Len(t, out.BhashaOutput.ClauseExplanations, 1)

	assert.Equal(t, []step{
		{StepReading, 10},
		{StepExtracting, 30},
		{StepScoring, 55},
		{StepTranslating, 80},
		{StepDone, 100},
	}, steps)

	for _, req := range stub.Calls() {
		assert.Equal(t, "test-model", req.Model)
	}
	assert.Equal(t, 4, stub.CallCount())
}

func TestPipeline_BaseLanguageMakesThreeCalls(t *testing.T) {
	stub := llmtest.Texts("Summary.", extractReply, scoreReply)

	out, err := NewPipeline(stub, Options{}).Run(context.Background(), Input{
		FileText: leaseText,
		FileName: "lease.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stub.CallCount())
	assert.Equal(t, BaseLanguage, out.BhashaOutput.Language)
	assert.Equal(t, "One serious issue.", out.BhashaOutput.Summary)
	assert.Equal(t, []ClauseExplanation{{ClauseID: "c1", Explanation: "Arbitrary eviction."}}, out.BhashaOutput.ClauseExplanations)
}

func TestPipeline_TotalExtractorFailure(t *testing.T) {
	stub := llmtest.New(
		llmtest.Reply{Text: "Summary."},
		llmtest.Reply{Err: errUpstream},
		llmtest.Reply{Err: errUpstream},
	)

	out, err := NewPipeline(stub, Options{}).Run(context.Background(), Input{
		FileText: leaseText,
		FileName: "lease.txt",
		Language: LangEnglish,
	})
	require.NoError(t, err)
	assert.Empty(t, out.Clauses)
	assert.Empty(t, out.RiskReport.Clauses)
	assert.Equal(t, 0, out.RiskReport.OverallScore)
	assert.Equal(t, 0, out.PowerImbalanceScore)
	assert.Empty(t, out.BhashaOutput.ClauseExplanations)
}

func TestPipeline_GatewayDownStillTerminates(t *testing.T) {
	down := llm.GatewayFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, errUpstream
	})

	out, err := NewPipeline(down, Options{}).Run(context.Background(), Input{
		FileText: leaseText,
		FileName: "lease.txt",
		Language: LangMarathi,
	})
	require.NoError(t, err)
	assert.Equal(t, summaryFallback, out.DocumentSummary)
	assert.Equal(t, failedSummary, out.BhashaOutput.Summary)
	assert.Equal(t, LangMarathi, out.BhashaOutput.Language)
}

func TestPipeline_InvalidInput(t *testing.T) {
	p := NewPipeline(llmtest.New(), Options{})
	cases := map[string]Input{
		"empty text":   {FileText: "  ", FileName: "a.txt"},
		"no file name": {FileText: leaseText},
		"bad language": {FileText: leaseText, FileName: "a.txt", Language: "fr"},
	}
	for name, in := range cases {
		_, err := p.Run(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput, name)
	}
}

func TestPipeline_RecoversStagePanic(t *testing.T) {
	boom := llm.GatewayFunc(func(context.Context, llm.Request) (llm.Response, error) {
		panic("nil map write")
	})

	out, err := NewPipeline(boom, Options{}).Run(context.Background(), Input{FileText: leaseText, FileName: "a.txt"})
	require.ErrorIs(t, err, ErrPipelineFailed)
	assert.Contains(t, err.Error(), "nil map write")
	assert.Equal(t, Output{}, out)
}

func TestPipeline_CancelledContextFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPipeline(llmtest.New(), Options{}).Run(ctx, Input{FileText: leaseText, FileName: "a.txt"})
	require.ErrorIs(t, err, ErrPipelineFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_ConcurrentRunsAreIndependent(t *testing.T) {
	p := NewPipeline(llm.GatewayFunc(func(_ context.Context, req llm.Request) (llm.Response, error) {
		switch req.Temperature {
		case 0.1:
			return llm.Response{Text: extractReply}, nil
		case 0.2:
			if req.JSON {
				return llm.Response{Text: scoreReply}, nil
			}
			return llm.Response{Text: "Summary."}, nil
		}
		return llm.Response{}, errUpstream
	}), Options{})

	var wg sync.WaitGroup
	results := make([]Output, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := p.Run(context.Background(), Input{FileText: leaseText, FileName: "lease.txt"})
			assert.NoError(t, err)
			results[i] = out
		}(i)
	}
	wg.Wait()

	for _, out := range results {
		assert.Equal(t, results[0], out)
	}
}

func TestPowerImbalance(t *testing.T) {
	assert.Equal(t, 42, PowerImbalance(RiskReport{OverallScore: 42, Clauses: []RiskedClause{
		{RiskLevel: RiskMedium, RiskScore: 6},
		{RiskLevel: RiskLow, RiskScore: 2},
	}}))

	assert.Equal(t, 70, PowerImbalance(RiskReport{OverallScore: 10, Clauses: []RiskedClause{
		{RiskLevel: RiskHigh, RiskScore: 8},
		{RiskLevel: RiskMedium, RiskScore: 5},
		{RiskLevel: RiskHigh, RiskScore: 6},
	}}))

	// 7.5 rounds half up
	assert.Equal(t, 80, PowerImbalance(RiskReport{Clauses: []RiskedClause{
		{RiskLevel: RiskHigh, RiskScore: 7},
		{RiskLevel: RiskHigh, RiskScore: 8},
	}}))

	assert.Equal(t, 0, PowerImbalance(RiskReport{}))
}
