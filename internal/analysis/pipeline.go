package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ericksa/contractlens/internal/llm"
	"github.com/ericksa/contractlens/internal/logging"
)

var (
	// ErrInvalidInput marks a caller contract violation. It is never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPipelineFailed marks an unexpected failure inside a stage.
	ErrPipelineFailed = errors.New("analysis pipeline failed")
)

// ProgressFunc observes stage transitions. It must not block.
type ProgressFunc func(label string, percent int)

// Progress steps in emission order.
const (
	StepReading     = "Reading document..."
	StepExtracting  = "Extracting clauses..."
	StepScoring     = "Scoring risk..."
	StepTranslating = "Translating to your language..."
	StepDone        = "Done!"
)

// Input is one document to analyze.
type Input struct {
	FileText string
	FileName string
	Language Language
	Progress ProgressFunc
}

// Options configures a Pipeline.
type Options struct {
	// Model overrides the gateway's default model for every stage.
	Model  string
	Logger *zap.Logger
}

// Pipeline sequences the four analysis stages. It holds no per-run state
// and is safe for concurrent use.
type Pipeline struct {
	summarizer *Summarizer
	extractor  *Extractor
	scorer     *Scorer
	explainer  *Explainer
	logger     *zap.Logger
}

func NewPipeline(gw llm.Gateway, opts Options) *Pipeline {
	logger := logging.OrNop(opts.Logger)
	return &Pipeline{
		summarizer: NewSummarizer(gw, opts.Model, logger),
		extractor:  NewExtractor(gw, opts.Model, logger),
		scorer:     NewScorer(gw, opts.Model, logger),
		explainer:  NewExplainer(gw, opts.Model, logger),
		logger:     logger.Named("analysis.pipeline"),
	}
}

// Run analyzes one document. It returns either a complete Output or an
// error wrapping ErrInvalidInput or ErrPipelineFailed, never both.
func (p *Pipeline) Run(ctx context.Context, in Input) (out Output, err error) {
	if err := in.validate(); err != nil {
		return Output{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("stage panicked",
				zap.String("file", in.FileName),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			out = Output{}
			err = fmt.Errorf("%w: %v", ErrPipelineFailed, r)
		}
	}()

	start := time.Now()
	progress := in.Progress
	if progress == nil {
		progress = func(string, int) {}
	}

	progress(StepReading, 10)
	summary := p.summarizer.Summarize(ctx, in.FileText, in.FileName)

	progress(StepExtracting, 30)
	clauses := p.extractor.Extract(ctx, in.FileText)

	progress(StepScoring, 55)
	report := p.scorer.Score(ctx, clauses, in.FileText)

	progress(StepTranslating, 80)
	bhasha, err := p.explainer.Explain(ctx, report, in.Language)
	if err != nil {
		return Output{}, err
	}
	// stages degrade to defaults on cancellation; do not pass those off as a result
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Output{}, fmt.Errorf("%w: %w", ErrPipelineFailed, ctxErr)
	}

	out = Output{
		DocumentSummary:     summary,
		Clauses:             clauses,
		RiskReport:          report,
		BhashaOutput:        bhasha,
		PowerImbalanceScore: PowerImbalance(report),
	}
	progress(StepDone, 100)

	p.logger.Info("analysis complete",
		zap.String("file", in.FileName),
		zap.String("language", string(in.Language)),
		zap.Int("clauses", len(clauses)),
		zap.Int("overall_score", report.OverallScore),
		zap.Int("power_imbalance", out.PowerImbalanceScore),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func (in *Input) validate() error {
	if strings.TrimSpace(in.FileText) == "" {
		return fmt.Errorf("%w: document text is empty", ErrInvalidInput)
	}
	if strings.TrimSpace(in.FileName) == "" {
		return fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	if in.Language == "" {
		in.Language = BaseLanguage
	}
	if !in.Language.Valid() {
		return fmt.Errorf("%w: unsupported language %q", ErrInvalidInput, in.Language)
	}
	return nil
}

// PowerImbalance is the mean score of the high-risk clauses scaled to
// 0..100, or the report's overall score when none are high risk.
func PowerImbalance(report RiskReport) int {
	sum, n := 0, 0
	for _, c := range report.Clauses {
		if c.RiskLevel == RiskHigh {
			sum += c.RiskScore
			n++
		}
	}
	if n == 0 {
		return clamp(report.OverallScore, 0, 100)
	}
	return clamp(roundHalfUp(float64(sum)/float64(n))*10, 0, 100)
}
