package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"course-rag/internal/mcpserver"
	"course-rag/internal/rag"
	"course-rag/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		addr     string
		watch    bool
		noIngest bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP query API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(os.Stdout)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx := cmd.Context()

			sys, err := rag.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer sys.Close()

			docs := cfg.RAG.DocsPath
			_, statErr := os.Stat(docs)
			docsExist := statErr == nil
			if err := startupIngest(ctx, sys, docs, docsExist, noIngest); err != nil {
				return err
			}

			if watch && !docsExist {
				return errors.New("--watch needs an existing docs folder")
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.New(sys).Start(gctx, cfg.Server.Addr, time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			})
			if watch {
				g.Go(func() error {
					return sys.Watch(gctx, docs)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address; overrides server.addr")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-index course documents when they change")
	cmd.Flags().BoolVar(&noIngest, "no-ingest", false, "skip indexing the docs folder on startup")
	return cmd
}

type startupIndexer interface {
	IndexReset() bool
	IngestFolder(ctx context.Context, dir string) (rag.IngestReport, error)
}

// startupIngest indexes the docs folder before serving. --no-ingest is
// ignored when the stored index was dropped on open, since it is empty.
func startupIngest(ctx context.Context, sys startupIndexer, docs string, docsExist, noIngest bool) error {
	if noIngest && sys.IndexReset() {
		log.Warn().Str("folder", docs).Msg("Stored index was reset, ingesting despite --no-ingest")
		noIngest = false
	}
	if noIngest {
		return nil
	}
	if !docsExist {
		log.Warn().Str("folder", docs).Msg("Docs folder not found, starting with the stored index")
		return nil
	}
	_, err := sys.IngestFolder(ctx, docs)
	return err
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the course tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the protocol
			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			sys, err := rag.OpenIngest(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer sys.Close()
			return mcpserver.NewServer(sys.Registry(), sys).Run(cmd.Context())
		},
	}
}
