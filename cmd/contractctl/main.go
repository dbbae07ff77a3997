// Command contractctl analyzes contracts, simulates negotiations and reads
// saved reports from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ericksa/contractlens/internal/analysis"
	"github.com/ericksa/contractlens/internal/config"
	"github.com/ericksa/contractlens/internal/llm"
	"github.com/ericksa/contractlens/internal/logging"
	"github.com/ericksa/contractlens/internal/negotiation"
	"github.com/ericksa/contractlens/internal/storage"
)

var (
	configPath string
	outputFmt  string
	userID     string
	verbose    bool
)

// app holds what a command needs. Commands build it lazily so that
// --help and flag errors never touch the network or the database.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	pipeline  analyzer
	simulator negotiator
	reports   reportStore
	out       io.Writer
	closers   []func() error
}

type analyzer interface {
	Run(ctx context.Context, in analysis.Input) (analysis.Output, error)
}

type negotiator interface {
	Negotiate(ctx context.Context, req negotiation.Request) (negotiation.Result, error)
}

type reportStore interface {
	Save(ctx context.Context, userID, fileName string, out analysis.Output) (string, error)
	List(ctx context.Context, userID string) ([]storage.StoredReport, error)
	Get(ctx context.Context, userID, id string) (storage.StoredReport, error)
}

// newApp is replaced in tests.
var newApp = func(ctx context.Context, needLLM bool) (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(level, "console")
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, out: os.Stdout}

	if needLLM {
		gw, err := llm.New(ctx, cfg.Gateway(), logger)
		if err != nil {
			return nil, err
		}
		a.pipeline = analysis.NewPipeline(gw, analysis.Options{Model: cfg.LLM.Model, Logger: logger})
		a.simulator = negotiation.NewSimulator(gw, cfg.LLM.Model, logger)
	}

	var sealer *storage.Sealer
	if cfg.Storage.EncryptionKey != "" {
		if sealer, err = storage.NewSealer(cfg.Storage.EncryptionKey, cfg.Storage.EncryptionSalt); err != nil {
			return nil, err
		}
	}
	store, err := storage.OpenReports(ctx, cfg.Storage.Driver, cfg.Storage.DSN, sealer, logger)
	if err != nil {
		return nil, err
	}
	a.reports = store
	a.closers = append(a.closers, store.Close)
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		_ = c()
	}
	_ = a.logger.Sync()
}

// render writes v as JSON or YAML.
func render(w io.Writer, format string, v any) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "contractctl",
		Short:         "Contract risk analysis from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml or $HOME/.contractlens/config.yaml)")
	root.PersistentFlags().StringVarP(&outputFmt, "output", "o", "json", "output format: json or yaml")
	root.PersistentFlags().StringVarP(&userID, "user", "u", os.Getenv("CL_USER"), "user id for saved reports")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newAnalyzeCmd(), newNegotiateCmd(), newHistoryCmd(), newConfigCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
