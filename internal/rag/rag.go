package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"course-rag/internal/chromemdb"
	"course-rag/internal/chunker"
	"course-rag/internal/config"
	"course-rag/internal/db"
	"course-rag/internal/embedding"
	"course-rag/internal/index"
	"course-rag/internal/llmservice"
	"course-rag/internal/models"
	"course-rag/internal/session"
	"course-rag/internal/tools"
)

var ErrEmptyQuery = errors.New("query is required")

// System wires ingestion, retrieval, tools, sessions and the orchestrator.
type System struct {
	cfg          *config.Config
	index        *index.VectorIndex
	registry     *tools.Registry
	sessions     *session.Store
	orchestrator *Orchestrator
}

// Open builds every component from configuration.
func Open(ctx context.Context, cfg *config.Config) (*System, error) {
	return open(ctx, cfg, true)
}

// OpenIngest builds a System without a language model. It can ingest, list
// courses and run tools, but not answer queries.
func OpenIngest(ctx context.Context, cfg *config.Config) (*System, error) {
	return open(ctx, cfg, false)
}

func open(ctx context.Context, cfg *config.Config, withModel bool) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	embedder, err := embedding.New(&cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	idx, err := NewIndex(ctx, cfg, embedder)
	if err != nil {
		return nil, err
	}
	var llm Generator
	if withModel {
		client, err := llmservice.New(&cfg.LLM)
		if err != nil {
			_ = idx.Close()
			return nil, err
		}
		llm = client
	}
	sys, err := New(cfg, idx, llm)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	return sys, nil
}

// NewIndex opens the configured backend and wraps it in a VectorIndex.
func NewIndex(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder) (*index.VectorIndex, error) {
	c, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrRetrieval, err)
	}
	return index.New(backend, embedder, c, cfg.RAG.CourseMatchThreshold, cfg.RAG.MaxResults), nil
}

func openBackend(ctx context.Context, cfg *config.Config) (index.Backend, error) {
	fingerprint := cfg.IndexFingerprint()
	switch cfg.Index.Backend {
	case "postgres":
		store, err := db.Open(ctx, &cfg.Database, fingerprint)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "chromem":
		manager, err := chromemdb.NewVectorDBManager(chromemdb.Options{
			Path:        cfg.Index.Path,
			InMemory:    cfg.Index.InMemory,
			Compress:    cfg.Index.Compress,
			Fingerprint: fingerprint,
		})
		if err != nil {
			return nil, err
		}
		return manager, nil
	default:
		return nil, fmt.Errorf("%w: unsupported index backend: %s", models.ErrConfiguration, cfg.Index.Backend)
	}
}

// New assembles a System around an existing index and model. A nil model
// leaves the System unable to answer queries.
func New(cfg *config.Config, idx *index.VectorIndex, llm Generator) (*System, error) {
	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewSearchTool(idx, cfg.RAG.MaxResults)); err != nil {
		return nil, err
	}
	if err := registry.Register(tools.NewOutlineTool(idx)); err != nil {
		return nil, err
	}
	s := &System{
		cfg:      cfg,
		index:    idx,
		registry: registry,
		sessions: session.New(cfg.RAG.MaxHistory),
	}
	if llm != nil {
		s.orchestrator = NewOrchestrator(llm, registry, cfg.LLM.MaxToolRounds)
	}
	return s, nil
}

func (s *System) Registry() *tools.Registry {
	return s.registry
}

func (s *System) Sessions() *session.Store {
	return s.sessions
}

// Query answers one user query within a session. An empty session id starts
// a new session. History is only extended when the turn succeeds.
func (s *System) Query(ctx context.Context, query, sessionID string) (models.Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.Response{}, ErrEmptyQuery
	}
	if s.orchestrator == nil {
		return models.Response{}, fmt.Errorf("%w: no language model configured", models.ErrConfiguration)
	}
	if sessionID == "" {
		sessionID = session.NewID()
	}

	turn := s.sessions.Begin(sessionID)
	defer turn.Abort()

	answer, sources, err := s.orchestrator.Run(ctx, query, turn.History())
	if err != nil {
		log.Error().Err(err).Str("session", sessionID).Msg("Query failed")
		return models.Response{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.Response{}, err
	}
	// a later turn gives up waiting for earlier ones when ctx ends
	if err := turn.CommitContext(ctx, query, answer); err != nil {
		return models.Response{}, err
	}

	if sources == nil {
		sources = []models.Source{}
	}
	return models.Response{Answer: answer, Sources: sources, SessionID: sessionID}, nil
}

// IndexReset reports whether stored courses were dropped on open, so the
// index is empty until the docs folder is ingested again.
func (s *System) IndexReset() bool {
	return s.index.NeedsReingest()
}

func (s *System) Stats(ctx context.Context) (models.CourseStats, error) {
	return s.index.CourseStats(ctx)
}

func (s *System) Close() error {
	return s.index.Close()
}
