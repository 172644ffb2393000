package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"course-rag/internal/config"
	"course-rag/internal/models"
)

const defaultConfigPath = "./configs/config.yaml"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "course-rag",
	Short: "Answer questions about course transcripts",
	Long: `course-rag indexes course transcripts (.txt, .pdf, .docx) into a vector
store and answers questions about them with a tool-calling language model.

  course-rag ingest ./docs        # index every course document in a folder
  course-rag ask "What is MCP?"   # ask a single question
  course-rag serve --watch        # HTTP API, re-indexing changed documents
  course-rag mcp                  # expose the course tools over MCP stdio`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to a YAML or TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")
	rootCmd.AddCommand(newIngestCmd(), newAskCmd(), newServeCmd(), newMCPCmd(), newCoursesCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the config file and sets up the global logger on out.
func loadConfig(out io.Writer) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := setupLogger(cfg.Log, out); err != nil {
		return nil, err
	}
	log.Debug().Str("path", configPath).Str("llm", cfg.LLM.Provider).Str("embedding", cfg.EmbedLLM.Provider).
		Str("backend", cfg.Index.Backend).Msg("Loaded config")
	return cfg, nil
}

func setupLogger(cfg config.LogConfig, out io.Writer) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("%w: invalid log level %q", models.ErrConfiguration, cfg.Level)
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)
	if cfg.Format == "json" {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
		return nil
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Caller().Logger()
	return nil
}
