package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/entity-extractor/internal/model"
	"github.com/sells-group/entity-extractor/internal/resilience"
)

var (
	extractInput  string
	extractFormat string
	extractJSONL  bool
	extractFailed string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract entities from a text file",
	Long:  "Splits the input into chunks (blank-line separated paragraphs, or one JSON string per line with --jsonl), extracts entities from each and prints the results.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		chunks, err := loadChunks(extractInput, extractJSONL)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			zap.L().Warn("no chunks in input", zap.String("input", extractInput))
		}

		env, err := initExtraction(ctx, cfg, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		return runExtract(ctx, env, chunks, cmd.OutOrStdout(), extractFormat, extractFailed)
	},
}

// runExtract runs the coordinator and writes results and dead letters. An
// interrupted run still writes what it has, then returns the cancellation
// error so the process exits non-zero.
func runExtract(ctx context.Context, env *extractEnv, chunks []model.TextChunk, w io.Writer, format, failedPath string) error {
	results, err := env.Coordinator.Run(ctx, chunks)
	if results != nil {
		if werr := writeResults(w, results, format); werr != nil {
			return werr
		}
	}
	zap.L().Info("extraction summary", env.Recorder.Snapshot().Fields()...)
	env.Checker.Check(context.WithoutCancel(ctx))

	if failedPath != "" && results != nil {
		if werr := writeDeadLetters(failedPath, resilience.DeadLetters(chunks, results, time.Now().UTC())); werr != nil {
			return werr
		}
	}

	if errors.Is(err, context.Canceled) {
		zap.L().Warn("extraction interrupted", zap.Int("chunks", len(chunks)))
		return eris.Wrap(err, "extraction interrupted")
	}
	return err
}

func loadChunks(path string, jsonl bool) ([]model.TextChunk, error) {
	if path == "" || path == "-" {
		return readChunks(os.Stdin, jsonl)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open input %s", path)
	}
	defer f.Close() //nolint:errcheck
	return readChunks(f, jsonl)
}

// writeDeadLetters writes the text of each failed chunk as one JSON string
// per line, so the file can be fed back with --jsonl.
func writeDeadLetters(path string, entries []resilience.DLQEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close() //nolint:errcheck

	enc := json.NewEncoder(f)
	for _, e := range entries {
		zap.L().Warn("chunk dead-lettered",
			zap.Int("chunk", e.Index),
			zap.String("fingerprint", model.ShortFingerprint(e.Fingerprint)),
			zap.String("error_kind", string(e.ErrorKind)),
			zap.Int("attempts", e.Attempts),
			zap.String("error", e.Error),
		)
		if err := enc.Encode(e.Text); err != nil {
			return eris.Wrapf(err, "write %s", path)
		}
	}
	zap.L().Info("dead letters written", zap.String("path", path), zap.Int("chunks", len(entries)))
	return eris.Wrapf(f.Sync(), "sync %s", path)
}

func init() {
	extractCmd.Flags().StringVar(&extractInput, "input", "-", "input file (- for stdin)")
	extractCmd.Flags().StringVar(&extractFormat, "format", formatJSON, "output format: json or yaml")
	extractCmd.Flags().BoolVar(&extractJSONL, "jsonl", false, "treat each input line as a JSON string chunk")
	extractCmd.Flags().StringVar(&extractFailed, "failed", "", "write failed chunks to this file as JSON lines")
	rootCmd.AddCommand(extractCmd)
}
