// Package cli is the command line surface: ask questions about local PDFs
// in-process and inspect how a PDF is extracted, cleaned and chunked.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/policy-query/internal/bootstrap"
	"github.com/kirillkom/policy-query/internal/config"
	"github.com/kirillkom/policy-query/internal/core/domain"
	"github.com/kirillkom/policy-query/internal/infrastructure/queue/nats"
)

// AppFactory builds the application for one command run.
type AppFactory func(ctx context.Context, cfg config.Config) (*bootstrap.App, error)

type Dependencies struct {
	LoadConfig func() (config.Config, error)
	NewApp     AppFactory
}

func DefaultDependencies() Dependencies {
	return Dependencies{
		LoadConfig: config.Load,
		NewApp: func(ctx context.Context, cfg config.Config) (*bootstrap.App, error) {
			return bootstrap.New(ctx, cfg, "pdfqa-cli", bootstrap.Options{})
		},
	}
}

func NewRootCommand(deps Dependencies) *cobra.Command {
	root := &cobra.Command{
		Use:           "pdfqa",
		Short:         "Ask questions about PDF policy documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAskCommand(deps), newInspectCommand(deps), newEventsCommand(deps))
	return root
}

func newAskCommand(deps Dependencies) *cobra.Command {
	var (
		files []string
		mode  string
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Load up to three PDFs and answer a question about them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 {
				return errors.New("at least one --file is required")
			}
			if len(files) > domain.MaxLiveDocuments {
				return fmt.Errorf("at most %d files can be loaded", domain.MaxLiveDocuments)
			}
			queryMode, ok := domain.ParseQueryMode(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q (auto, single, cross)", mode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			app, err := openApp(ctx, deps)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			for _, path := range files {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				if _, err := app.IngestUC.ProcessUpload(ctx, data, filepath.Base(path)); err != nil {
					return fmt.Errorf("load %s: %w", path, err)
				}
			}

			answer, err := app.QueryUC.ProcessQuery(ctx, args[0], queryMode)
			if err != nil {
				return err
			}
			return writeJSON(cmd, answer)
		},
	}
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "PDF file to load (repeatable, up to 3)")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(domain.QueryModeAuto), "query mode: auto, single or cross")
	return cmd
}

type inspectedPage struct {
	Number int               `json:"number"`
	Source domain.PageSource `json:"source"`
	Chars  int               `json:"chars"`
}

type inspectedChunk struct {
	Index int    `json:"index"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text,omitempty"`
}

type inspection struct {
	Filename    string                `json:"filename"`
	Pages       []inspectedPage       `json:"pages"`
	Cleaning    domain.CleaningReport `json:"cleaning"`
	CleanedText string                `json:"cleaned_text,omitempty"`
	Chunks      []inspectedChunk      `json:"chunks"`
}

func newInspectCommand(deps Dependencies) *cobra.Command {
	var showText bool
	cmd := &cobra.Command{
		Use:   "inspect [file.pdf]",
		Short: "Show extracted pages, cleaning results and chunk boundaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			app, err := openApp(ctx, deps)
			if err != nil {
				return err
			}
			defer app.Close(ctx)

			pages, err := app.Extractor.Extract(ctx, data)
			if err != nil {
				return err
			}
			raw := make([]string, len(pages))
			out := inspection{Filename: filepath.Base(args[0])}
			for i, p := range pages {
				raw[i] = p.Text
				out.Pages = append(out.Pages, inspectedPage{Number: p.Number, Source: p.Source, Chars: len([]rune(p.Text))})
			}

			cleaned, report := app.Cleaner.CleanWithReport(strings.Join(raw, "\f"))
			out.Cleaning = report
			chunks, err := app.Chunker.Chunk("inspect", cleaned)
			if err != nil {
				return err
			}
			for _, c := range chunks {
				ic := inspectedChunk{Index: c.Index, Start: c.Start, End: c.End}
				if showText {
					ic.Text = c.Text
				}
				out.Chunks = append(out.Chunks, ic)
			}
			if showText {
				out.CleanedText = cleaned
			}
			return writeJSON(cmd, out)
		},
	}
	cmd.Flags().BoolVar(&showText, "text", false, "include cleaned text and chunk text")
	return cmd
}

func newEventsCommand(deps Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Print document events published by a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}
			subscriber, err := nats.New(cfg.NATSURL, cfg.NATSSubjectPrefix)
			if err != nil {
				return err
			}
			defer subscriber.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return subscriber.SubscribeDocumentEvents(ctx, func(_ context.Context, event domain.DocumentEvent) error {
				return writeJSON(cmd, event)
			})
		},
	}
}

func openApp(ctx context.Context, deps Dependencies) (*bootstrap.App, error) {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, err
	}
	return deps.NewApp(ctx, cfg)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
