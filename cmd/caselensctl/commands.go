package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/caselens/caselens/internal/config"
	"github.com/caselens/caselens/internal/version"
	caselens "github.com/caselens/caselens/pkg/sdk"
)

type rootOptions struct {
	configPath string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "caselensctl",
		Short:         "Operate a caselens document store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Config file path (default: config/$ENV.yaml)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute,
		"Overall command timeout")

	rootCmd.AddCommand(
		newMigrateCmd(opts),
		newIngestCmd(opts),
		newSimilarCmd(opts),
		newListCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var hnsw bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the vector extension and the documents table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()

			if cfg.Database.Driver != config.DriverPostgres {
				fmt.Fprintf(cmd.OutOrStdout(), "driver %q has no schema, nothing to do\n", cfg.Database.Driver)
				return nil
			}
			if err := caselens.Migrate(ctx, cfg.Database.DSN, cfg.Embedding.Dimensions, hnsw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (dimensions=%d, hnsw=%t)\n", cfg.Embedding.Dimensions, hnsw)
			return nil
		},
	}
	cmd.Flags().BoolVar(&hnsw, "hnsw", false, "Add an approximate HNSW index (default: exact scan)")
	return cmd
}

// ingestRecord is one element of the ingest file.
type ingestRecord struct {
	Title          string `json:"title"`
	Classification string `json:"classification"`
	Summary        string `json:"summary"`
	PDFLink        string `json:"pdf_link"`
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file.json>",
		Short: "Embed and store documents from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readIngestFile(args[0])
			if err != nil {
				return err
			}
			return opts.withClient(cmd, func(ctx context.Context, c *caselens.Client) error {
				stored, err := c.Ingest(ctx, docs)
				if err != nil {
					return fmt.Errorf("ingest (%d of %d stored): %w", len(stored), len(docs), err)
				}
				return writeJSON(cmd.OutOrStdout(), stored)
			})
		},
	}
}

func newSimilarCmd(opts *rootOptions) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "similar <summary>",
		Short: "Find the stored cases nearest to a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *caselens.Client) error {
				matches, err := c.FindSimilar(ctx, args[0], k)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), matches)
			})
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of results (0 selects the configured default)")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withClient(cmd, func(ctx context.Context, c *caselens.Client) error {
				docs, err := c.List(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), docs)
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "caselensctl", version.String())
		},
	}
}

func (o *rootOptions) load() (config.Config, error) {
	if o.configPath != "" {
		return config.LoadFile(o.configPath)
	}
	return config.Load(config.GetEnv())
}

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func (o *rootOptions) withClient(cmd *cobra.Command, fn func(context.Context, *caselens.Client) error) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	ctx, cancel := o.context(cmd)
	defer cancel()

	c, err := caselens.New(ctx, clientOptions(cfg)...)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

func clientOptions(cfg config.Config) []caselens.Option {
	opts := []caselens.Option{
		caselens.WithOpenAIEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model),
		caselens.WithDimensions(cfg.Embedding.Dimensions),
		caselens.WithDefaultK(cfg.Similarity.DefaultK),
		caselens.WithMaxK(cfg.Similarity.MaxK),
		caselens.WithKPolicy(caselens.KPolicy(cfg.Similarity.KPolicy)),
		caselens.WithTimeouts(cfg.Embedding.Timeout(), cfg.Database.QueryTimeout()),
		caselens.WithRetry(caselens.RetryConfig{
			MaxTries:        cfg.Embedding.Retry.MaxTries,
			InitialInterval: time.Duration(cfg.Embedding.Retry.InitialIntervalMs) * time.Millisecond,
			MaxInterval:     time.Duration(cfg.Embedding.Retry.MaxIntervalMs) * time.Millisecond,
		}),
	}
	if cfg.Database.Driver == config.DriverMemory {
		return append(opts, caselens.WithMemoryStore())
	}
	return append(opts,
		caselens.WithPostgres(cfg.Database.DSN),
		caselens.WithMaxConns(cfg.Database.MaxConns),
	)
}

func readIngestFile(path string) ([]caselens.Document, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var records []ingestRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	docs := make([]caselens.Document, len(records))
	for i, r := range records {
		docs[i] = caselens.Document{
			Title:          r.Title,
			Classification: r.Classification,
			Summary:        r.Summary,
			PDFLink:        r.PDFLink,
		}
	}
	return docs, nil
}

// matchOutput flattens a match for JSON output.
type matchOutput struct {
	documentOutput
	Distance float64 `json:"distance"`
}

type documentOutput struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Classification string `json:"classification"`
	Summary        string `json:"summary"`
	PDFLink        string `json:"pdf_link"`
}

func toDocumentOutput(d caselens.Document) documentOutput {
	return documentOutput{
		ID:             d.ID,
		Title:          d.Title,
		Classification: d.Classification,
		Summary:        d.Summary,
		PDFLink:        d.PDFLink,
	}
}

func writeJSON(w io.Writer, v any) error {
	switch t := v.(type) {
	case []caselens.Document:
		out := make([]documentOutput, len(t))
		for i := range t {
			out[i] = toDocumentOutput(t[i])
		}
		v = out
	case []caselens.Match:
		out := make([]matchOutput, len(t))
		for i := range t {
			out[i] = matchOutput{documentOutput: toDocumentOutput(t[i].Document), Distance: t[i].Distance}
		}
		v = out
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
