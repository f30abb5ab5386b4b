package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"docpipe/internal/classify"
	"docpipe/internal/config"
	"docpipe/internal/dedup"
	qdrantindex "docpipe/internal/dedup/qdrant"
	"docpipe/internal/extract"
	"docpipe/internal/inference"
	"docpipe/internal/ingest"
	"docpipe/internal/pipeline"
	"docpipe/internal/port"
	"docpipe/internal/schema"

	sqlitestore "docpipe/internal/checkpoint/sqlite"

	// Register inference providers.
	_ "docpipe/internal/inference/ollama"
	_ "docpipe/internal/inference/openai"
)

var (
	runInputDir string
	runForce    bool
	runJSONOut  bool
)

var runCmd = &cobra.Command{
	Use:   "run [paths...]",
	Short: "Process a batch of documents",
	Long: `Process the given document paths (or every supported file under
--input) through the full pipeline. A second run over the same inputs picks
up from the checkpoint store: finished documents are returned as-is and
interrupted ones resume from their last completed attempt.`,
	RunE: runBatch,
}

func init() {
	runCmd.Flags().StringVarP(&runInputDir, "input", "i", "", "directory to scan for documents")
	runCmd.Flags().BoolVarP(&runForce, "force", "f", false, "bypass the deduplication gate for this batch")
	runCmd.Flags().BoolVar(&runJSONOut, "json", false, "print the full batch report as JSON")
	rootCmd.AddCommand(runCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	paths, err := collectPaths(args, runInputDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no input documents: pass paths or --input")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlitestore.New(cfg.Checkpoint.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	base, err := inference.NewClient(&cfg.Inference)
	if err != nil {
		return err
	}
	client := inference.NewRetryingClient(base, cfg.Inference.MaxRetries, cfg.Inference.RatePerSecond, cfg.Inference.Burst)

	classifier, err := classify.New(client, &cfg.Classifier)
	if err != nil {
		return err
	}

	var index port.DuplicateIndex
	switch cfg.Dedup.Backend {
	case "qdrant":
		index, err = qdrantindex.New(ctx, &cfg.Qdrant)
		if err != nil {
			return err
		}
	default:
		index = dedup.NewMemoryIndex()
	}
	gate := dedup.NewGate(index, nil, &cfg.Dedup)

	scorer := extract.NewScorer(&cfg.Scoring)
	extractor := extract.New(client, store, scorer, &cfg.Extractor, cfg.Inference.Model)
	orch := pipeline.New(cfg.Pipeline, classifier, extractor, gate, schema.NewRegistry(), store)

	docs, err := ingest.Build(ctx, paths, ingest.NewFileReader())
	if err != nil {
		return err
	}

	report, err := orch.Run(ctx, docs, runForce)
	if err != nil {
		return err
	}

	if runJSONOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printSummary(report)
	if report.Failed > 0 {
		return fmt.Errorf("%d document(s) failed", report.Failed)
	}
	return nil
}

func printSummary(report *pipeline.BatchReport) {
	fmt.Printf("processed: %d  succeeded: %d  failed: %d  deduplicated: %d  interrupted: %d  skipped: %d\n",
		report.Processed, report.Succeeded, report.Failed, report.Deduplicated, report.Interrupted, report.Skipped)
	for _, outcome := range report.Outcomes {
		switch {
		case outcome.Skipped:
			continue
		case outcome.Result != nil:
			fmt.Printf("  %s  %-9s  confidence=%.2f  rounds=%d  %s\n",
				outcome.DocumentID, outcome.Status, outcome.Result.Confidence,
				outcome.Result.CorrectionRounds, outcome.SourcePath)
		default:
			fmt.Printf("  %s  %-9s  attempts=%d  %s\n",
				outcome.DocumentID, outcome.Status, outcome.AttemptCount, outcome.SourcePath)
			for _, v := range outcome.Violations {
				fmt.Printf("      - [%s] %s: %s\n", v.RuleID, v.FieldName, v.Message)
			}
		}
	}
}

func collectPaths(args []string, inputDir string) ([]string, error) {
	paths := append([]string(nil), args...)
	if inputDir == "" {
		return paths, nil
	}
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", inputDir, err)
	}
	log.Printf("commands.runBatch: collected %d path(s)", len(paths))
	return paths, nil
}
