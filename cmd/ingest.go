package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"course-rag/internal/helper"
	"course-rag/internal/models"
	"course-rag/internal/rag"
)

type parsedSummary struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Lessons int    `json:"lessons"`
}

func newIngestCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Index every course document in a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			dir := cfg.RAG.DocsPath
			if len(args) == 1 {
				dir = args[0]
			}
			ctx := cmd.Context()

			if dryRun {
				parsed, failures, err := rag.ParseFolder(ctx, dir, cfg.RAG.IngestWorkers)
				if err != nil {
					return err
				}
				summary := make([]parsedSummary, 0, len(parsed))
				for _, p := range parsed {
					summary = append(summary, parsedSummary{Path: p.Path, Title: p.Course.Title, Lessons: len(p.Course.Lessons)})
				}
				helper.PrettyPrint(cmd.OutOrStdout(), struct {
					Courses  []parsedSummary          `json:"courses"`
					Failures []models.IngestionError `json:"failures"`
				}{summary, failures})
				return nil
			}

			sys, err := rag.OpenIngest(ctx, cfg)
			if err != nil {
				return err
			}
			defer sys.Close()

			report, err := sys.IngestFolder(ctx, dir)
			if err != nil {
				return err
			}
			for _, f := range report.Failures {
				log.Warn().Str("file", f.Path).Msg(f.Error())
			}
			helper.PrettyPrint(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse documents and print them without indexing")
	return cmd
}

func newCoursesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List indexed courses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			sys, err := rag.OpenIngest(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer sys.Close()

			stats, err := sys.Stats(cmd.Context())
			if err != nil {
				return err
			}
			helper.PrettyPrint(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}
