package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/shopimport/internal/application"
	"github.com/JonMunkholm/shopimport/internal/core"
	"github.com/JonMunkholm/shopimport/internal/source"
)

type runOptions struct {
	domain    string
	format    string
	file      string
	queue     string
	wait      time.Duration
	dryRun    bool
	batchSize int
	workers   int
}

func newRunCmd(c *cli) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Import a file or a Redis queue into a domain",
		Example: `  importctl run --domain product --file products.csv
  importctl run --domain product --format xml --file products.xml --dry-run
  importctl run --domain stock --queue import:stock`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), c, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.domain, "domain", "", "Domain to import into, e.g. product (required)")
	cmd.Flags().StringVar(&opts.format, "format", "csv", "Input format: csv or xml")
	cmd.Flags().StringVar(&opts.file, "file", "", "Input file")
	cmd.Flags().StringVar(&opts.queue, "queue", "", "Redis list to consume instead of a file")
	cmd.Flags().DurationVar(&opts.wait, "wait", source.DefaultQueueWait, "How long an empty queue is waited on before the run ends")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Import into an in-memory store and discard the result")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Records per lookup (default: $IMPORT_BATCH_SIZE)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Parallel workers (default: $IMPORT_WORKERS)")

	_ = cmd.MarkFlagRequired("domain")
	cmd.MarkFlagsOneRequired("file", "queue")
	cmd.MarkFlagsMutuallyExclusive("file", "queue")

	return cmd
}

func runImport(ctx context.Context, c *cli, opts runOptions, out io.Writer) error {
	kind, err := core.ParseKind(opts.format)
	if err != nil {
		return err
	}
	if opts.batchSize > 0 {
		c.cfg.Import.BatchSize = opts.batchSize
	}
	if opts.workers > 0 {
		c.cfg.Import.Workers = opts.workers
	}

	app, err := application.Open(ctx, c.cfg, application.Options{Memory: opts.dryRun, Logger: c.logger})
	if err != nil {
		return err
	}
	defer app.Close()

	importer := app.Importer()
	if err := importer.Validate(opts.domain, kind); err != nil {
		return err
	}

	records, closeInput, err := openRecords(ctx, app, opts, kind)
	if err != nil {
		return err
	}
	defer closeInput()

	logger := c.logger.With("domain", opts.domain, "format", kind)
	logger.Info("import started", "file", opts.file, "queue", opts.queue, "dry_run", opts.dryRun)

	result, err := importer.ImportRecords(ctx, opts.domain, kind, records, func(processed, failed int) {
		if processed%1000 == 0 {
			logger.Info("import progress", "processed", processed, "failed", failed)
		}
	})
	if result != nil {
		result.FileName = opts.file
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return errors.Join(err, encErr)
		}
	}
	if err != nil {
		return err
	}

	logger.Info("import finished",
		"processed", result.Processed,
		"imported", result.Imported,
		"failed", result.Failed,
		"duration", result.Duration,
	)
	return nil
}

// openRecords opens the file or queue reader of the run.
func openRecords(ctx context.Context, app *application.App, opts runOptions, kind core.Kind) (core.RecordReader, func(), error) {
	csvOpts := source.CSVOptionsFrom(app.Tree, opts.domain)

	if opts.queue != "" {
		client, err := app.Redis(ctx)
		if err != nil {
			return nil, nil, err
		}
		reader := source.NewQueueReader(ctx, client, opts.queue, source.QueueOptions{
			Kind:      kind,
			Separator: csvOpts.Separator,
			Wait:      opts.wait,
			Metrics:   app.Env.Metrics,
		})
		return reader, func() {}, nil
	}

	f, err := os.Open(opts.file)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	closeFile := func() { _ = f.Close() }

	if kind == core.KindXML {
		return source.NewXMLReader(f, size), closeFile, nil
	}
	return source.NewCSVReader(f, size, csvOpts), closeFile, nil
}
