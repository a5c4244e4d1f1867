package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bosocmputer/invoice_po_matcher/configs"
	"github.com/bosocmputer/invoice_po_matcher/internal/app"
	"github.com/bosocmputer/invoice_po_matcher/internal/grouper"
	"github.com/bosocmputer/invoice_po_matcher/internal/logger"
	"github.com/bosocmputer/invoice_po_matcher/internal/pipeline"
	"github.com/bosocmputer/invoice_po_matcher/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errBatchFailed makes the process exit non-zero after the summary is printed.
var errBatchFailed = errors.New("batch failed")

type cliStore interface {
	app.Store
	Ping(ctx context.Context) error
	GetAssistEnabled(ctx context.Context, def bool) (bool, error)
}

type rootOptions struct {
	fixture   string
	outputDir string
	reserve   bool
	assist    string
	tag       string
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}

	root := &cobra.Command{
		Use:           "invoicematch",
		Short:         "Split invoice batches and file them against purchase orders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configs.LoadConfig()
			if o.outputDir != "" {
				configs.OUTPUT_DIR = o.outputDir
			}
			if cmd.Flags().Changed("reserve") {
				configs.RESERVE_ON_MATCH = o.reserve
			}
			return logger.Init(configs.LOG_LEVEL, configs.LOG_DEVELOPMENT)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.fixture, "fixture", "", "JSON file with po_requests and jobs; skips MongoDB")
	flags.StringVar(&o.outputDir, "output", "", "directory for split PDFs (overrides OUTPUT_DIR)")
	flags.BoolVar(&o.reserve, "reserve", false, "remove a PO from later pages once an invoice claims it")

	process := &cobra.Command{
		Use:   "process <pdf>",
		Short: "Process one batch PDF and print the summary as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), cmd.OutOrStdout(), o, args[0])
		},
	}
	process.Flags().StringVar(&o.assist, "assist", "auto", "assist matching: on, off or auto (persisted setting)")
	process.Flags().StringVar(&o.tag, "tag", "", "batch tag used in file names (default: current timestamp)")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check the store and report reference data counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}

	root.AddCommand(process, verify)
	return root
}

// openStore returns the fixture store when one is given, MongoDB otherwise.
func openStore(o *rootOptions, log *zap.Logger) (cliStore, func(), error) {
	if o.fixture != "" {
		s, err := storage.LoadMemoryStore(o.fixture)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using fixture store", zap.String("path", o.fixture))
		return s, func() {}, nil
	}

	if err := storage.InitMongoDB(log); err != nil {
		return nil, nil, err
	}
	s := storage.NewMongoStore(storage.GetMongoDB(), time.Duration(configs.CACHE_TTL_SECONDS)*time.Second)
	return s, func() { storage.CloseMongoDB(log) }, nil
}

func assistEnabled(ctx context.Context, o *rootOptions, store cliStore, def bool, log *zap.Logger) (bool, error) {
	switch o.assist {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "", "auto":
		enabled, err := store.GetAssistEnabled(ctx, def)
		if err != nil {
			log.Warn("failed to read assist setting, using default", zap.Error(err))
			return def, nil
		}
		return enabled, nil
	default:
		return false, fmt.Errorf("invalid --assist value %q (want on, off or auto)", o.assist)
	}
}

func runProcess(ctx context.Context, out io.Writer, o *rootOptions, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Get()

	store, closeStore, err := openStore(o, log)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := app.NewEngine(ctx, store, log)
	defer func() { _ = engine.Close() }()
	if err != nil {
		return err
	}

	enabled, err := assistEnabled(ctx, o, store, configs.ASSIST_MATCHING_ENABLED, log)
	if err != nil {
		return err
	}
	tag := o.tag
	if tag == "" {
		tag = grouper.Timestamp(time.Now())
	}

	summary := engine.Orchestrator.Run(ctx, path, tag, pipeline.OptionsFromConfig(enabled))
	if err := writeJSON(out, summary); err != nil {
		return err
	}
	if !summary.Success {
		return fmt.Errorf("%w: %s", errBatchFailed, summary.Error)
	}
	return nil
}

func runVerify(ctx context.Context, out io.Writer, o *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Get()

	store, closeStore, err := openStore(o, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	pos, err := store.ListEligiblePOs(ctx)
	if err != nil {
		return err
	}
	jobs, err := store.ListActiveJobNames(ctx)
	if err != nil {
		return err
	}

	return writeJSON(out, map[string]interface{}{
		"database":          "connected",
		"eligible_pos":      len(pos),
		"active_jobs":       len(jobs),
		"assist_provider":   configs.ASSIST_PROVIDER,
		"assist_configured": configs.AssistConfigured(),
		"ocr_provider":      configs.OCR_PROVIDER,
		"output_dir":        configs.OUTPUT_DIR,
		"gcs_bucket":        configs.GCS_BUCKET,
	})
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
