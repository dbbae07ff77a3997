package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ericksa/contractlens/internal/analysis"
	"github.com/ericksa/contractlens/internal/audit"
	"github.com/ericksa/contractlens/internal/logging"
	"github.com/ericksa/contractlens/internal/negotiation"
	"github.com/ericksa/contractlens/internal/storage"
)

// Tool names.
const (
	ToolAnalyze   = "contract_analyze"
	ToolNegotiate = "contract_negotiate"
	ToolHistory   = "contract_history"
)

var errNoHistory = errors.New("history is not enabled")

type Analyzer interface {
	Run(ctx context.Context, in analysis.Input) (analysis.Output, error)
}

type Negotiator interface {
	Negotiate(ctx context.Context, req negotiation.Request) (negotiation.Result, error)
}

type ReportStore interface {
	Save(ctx context.Context, userID, fileName string, out analysis.Output) (string, error)
	List(ctx context.Context, userID string) ([]storage.StoredReport, error)
	Get(ctx context.Context, userID, id string) (storage.StoredReport, error)
}

type AuditLog interface {
	Log(ctx context.Context, rec audit.Record)
}

type Options struct {
	Analyzer   Analyzer
	Negotiator Negotiator
	Reports    ReportStore
	Audit      AuditLog
	Logger     *zap.Logger
	MaxRounds  int
	Version    string
}

type AnalyzeInput struct {
	FileText string `json:"fileText" jsonschema:"full plain text of the contract"`
	FileName string `json:"fileName" jsonschema:"original file name"`
	Language string `json:"language,omitempty" jsonschema:"output language: en, hi, mr, ta, bn or te"`
	UserID   string `json:"userId,omitempty" jsonschema:"when set the report is saved to this user's history"`
}

type NegotiateInput struct {
	Clause    analysis.RiskedClause `json:"clause" jsonschema:"a risk-assessed clause from contract_analyze"`
	Archetype string                `json:"archetype" jsonschema:"aggressive_corporate, small_landlord, mnc_standard, cooperative_employer or bank_loan_officer"`
	MaxRounds int                   `json:"maxRounds,omitempty" jsonschema:"round limit, at most 10"`
}

type HistoryInput struct {
	UserID   string `json:"userId" jsonschema:"whose history to read"`
	ReportID string `json:"reportId,omitempty" jsonschema:"a single report; omit to list all, newest first"`
}

// Handler exposes the analysis pipeline as MCP tools over streamable HTTP.
type Handler struct {
	opts      Options
	logger    *zap.Logger
	server    *mcp.Server
	transport http.Handler
}

func NewHandler(opts Options) *Handler {
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	h := &Handler{opts: opts, logger: logging.OrNop(opts.Logger).Named("mcp")}
	h.initMCPServer()
	return h
}

func (h *Handler) initMCPServer() {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "ContractLens",
		Version: h.opts.Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolAnalyze,
		Description: "Summarize a contract, extract and risk-score its clauses, and explain the risky ones in an Indian language.",
	}, wrapTool(h, ToolAnalyze, h.analyze))
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolNegotiate,
		Description: "Simulate negotiating one risky clause against a counterparty archetype.",
	}, wrapTool(h, ToolNegotiate, h.negotiate))
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolHistory,
		Description: "List a user's saved analyses, or fetch one by id.",
	}, wrapTool(h, ToolHistory, h.history))

	h.server = server
	h.transport = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

// Server returns the underlying MCP server.
func (h *Handler) Server() *mcp.Server { return h.server }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.server == nil {
		http.Error(w, "MCP server not initialized", http.StatusInternalServerError)
		return
	}
	h.transport.ServeHTTP(w, r)
}

// wrapTool adapts fn to the SDK handler shape, auditing each call and
// reporting failures as tool errors rather than protocol errors.
func wrapTool[In any](h *Handler, toolName string, fn func(ctx context.Context, in In) (subject, user string, out any, err error)) func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		subject, user, out, err := fn(ctx, input)
		if h.opts.Audit != nil {
			h.opts.Audit.Log(ctx, audit.Record{
				Action:   toolName,
				UserID:   user,
				Subject:  subject,
				Err:      err,
				Duration: time.Since(start),
			})
		}
		if err != nil {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: err.Error()},
				},
			}, nil, nil
		}

		body, err := json.Marshal(out)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s result: %w", toolName, err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: string(body)},
			},
		}, nil, nil
	}
}

type analyzeResult struct {
	analysis.Output
	ReportID string `json:"reportId,omitempty"`
}

func (h *Handler) analyze(ctx context.Context, in AnalyzeInput) (string, string, any, error) {
	lang, err := analysis.ParseLanguage(in.Language)
	if err != nil {
		return in.FileName, in.UserID, nil, err
	}
	out, err := h.opts.Analyzer.Run(ctx, analysis.Input{FileText: in.FileText, FileName: in.FileName, Language: lang})
	if err != nil {
		return in.FileName, in.UserID, nil, err
	}

	res := analyzeResult{Output: out}
	if in.UserID != "" && h.opts.Reports != nil {
		id, err := h.opts.Reports.Save(ctx, in.UserID, in.FileName, out)
		if err != nil {
			h.logger.Error("failed to save report", zap.String("user", in.UserID), zap.Error(err))
		} else {
			res.ReportID = id
		}
	}
	return in.FileName, in.UserID, res, nil
}

func (h *Handler) negotiate(ctx context.Context, in NegotiateInput) (string, string, any, error) {
	archetype, err := negotiation.ParseArchetype(in.Archetype)
	if err != nil {
		return in.Clause.ID, "", nil, err
	}
	rounds := in.MaxRounds
	if rounds == 0 {
		rounds = h.opts.MaxRounds
	}
	res, err := h.opts.Negotiator.Negotiate(ctx, negotiation.Request{Clause: in.Clause, Archetype: archetype, MaxRounds: rounds})
	if err != nil {
		return in.Clause.ID, "", nil, err
	}
	return in.Clause.ID, "", res, nil
}

func (h *Handler) history(ctx context.Context, in HistoryInput) (string, string, any, error) {
	if h.opts.Reports == nil {
		return in.ReportID, in.UserID, nil, errNoHistory
	}
	if in.UserID == "" {
		return in.ReportID, "", nil, storage.ErrNoUser
	}
	if in.ReportID != "" {
		r, err := h.opts.Reports.Get(ctx, in.UserID, in.ReportID)
		return in.ReportID, in.UserID, r, err
	}
	list, err := h.opts.Reports.List(ctx, in.UserID)
	return "", in.UserID, list, err
}
