package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"course-rag/internal/chunker"
	"course-rag/internal/models"
)

// AlwaysBestMatch disables the course resolution threshold.
const AlwaysBestMatch float32 = -1

// Backend stores the catalog and content collections. Vectors are computed
// by the VectorIndex so both collections share one embedding space.
type Backend interface {
	UpsertCatalog(ctx context.Context, entry models.CatalogEntry, vector []float32) error
	// ReplaceChunks deletes every chunk of the course and stores the new set.
	ReplaceChunks(ctx context.Context, courseTitle string, chunks []models.Chunk, vectors [][]float32) error
	NearestCourses(ctx context.Context, vector []float32, n int) ([]models.CourseMatch, error)
	SearchChunks(ctx context.Context, vector []float32, filter models.SearchFilter, k int) ([]models.SearchResult, error)
	// GetCatalogEntry returns models.ErrCourseNotFound for unknown titles.
	GetCatalogEntry(ctx context.Context, title string) (models.CatalogEntry, error)
	CourseTitles(ctx context.Context) ([]string, error)
	ChunkCount(ctx context.Context) (int, error)
	// WasReset reports whether stale data was dropped when the backend opened.
	WasReset() bool
	Close() error
}

// VectorIndex resolves course names against the catalog and runs filtered
// semantic search over the content collection.
type VectorIndex struct {
	backend   Backend
	embedder  embeddings.Embedder
	chunker   *chunker.Chunker
	threshold float32
	topK      int
}

func New(backend Backend, embedder embeddings.Embedder, c *chunker.Chunker, threshold float32, topK int) *VectorIndex {
	if topK <= 0 {
		topK = 5
	}
	return &VectorIndex{
		backend:   backend,
		embedder:  embedder,
		chunker:   c,
		threshold: threshold,
		topK:      topK,
	}
}

// ResolveCourse maps a free-text course reference to the nearest catalog
// entry. A best match below the threshold is reported as ErrCourseNotFound.
func (v *VectorIndex) ResolveCourse(ctx context.Context, name string) (models.CatalogEntry, error) {
	vec, err := v.embedQuery(ctx, name)
	if err != nil {
		return models.CatalogEntry{}, err
	}
	matches, err := v.backend.NearestCourses(ctx, vec, 1)
	if err != nil {
		return models.CatalogEntry{}, fmt.Errorf("%w: failed to query catalog: %w", models.ErrRetrieval, err)
	}
	if len(matches) == 0 {
		return models.CatalogEntry{}, fmt.Errorf("%w: %q", models.ErrCourseNotFound, name)
	}

	best := matches[0]
	log.Debug().Str("query", name).Str("course", best.Entry.Title).Float32("score", best.Score).Msg("Resolved course")
	if v.threshold != AlwaysBestMatch && best.Score < v.threshold {
		return models.CatalogEntry{}, fmt.Errorf("%w: %q (best %q scored %.2f)", models.ErrCourseNotFound, name, best.Entry.Title, best.Score)
	}
	return best.Entry, nil
}

// Search returns up to topK chunks ordered by decreasing similarity. A
// non-positive topK uses the configured default.
func (v *VectorIndex) Search(ctx context.Context, query string, filter models.SearchFilter, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = v.topK
	}
	vec, err := v.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := v.backend.SearchChunks(ctx, vec, filter, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search content: %w", models.ErrRetrieval, err)
	}
	return results, nil
}

// UpsertCourse replaces the catalog entry and every chunk of the course.
// Re-ingesting the same course leaves the index unchanged.
func (v *VectorIndex) UpsertCourse(ctx context.Context, course models.Course) (int, error) {
	if course.Title == "" {
		return 0, errors.New("course title is required")
	}
	entry := models.NewCatalogEntry(course)
	titleVec, err := v.embedQuery(ctx, course.Title)
	if err != nil {
		return 0, err
	}

	chunks := v.chunker.ChunkCourse(course)
	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vectors, err = v.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to embed chunks: %w", models.ErrRetrieval, err)
		}
		if len(vectors) != len(chunks) {
			return 0, fmt.Errorf("%w: got %d embeddings for %d chunks", models.ErrRetrieval, len(vectors), len(chunks))
		}
	}

	// chunks first: a course is only listed once its content is searchable
	if err := v.backend.ReplaceChunks(ctx, course.Title, chunks, vectors); err != nil {
		return 0, fmt.Errorf("%w: failed to store chunks: %w", models.ErrRetrieval, err)
	}
	if err := v.backend.UpsertCatalog(ctx, entry, titleVec); err != nil {
		log.Warn().Str("course", course.Title).Int("chunks", len(chunks)).Msg("Chunks stored without a catalog entry")
		return 0, fmt.Errorf("%w: failed to store catalog entry: %w", models.ErrRetrieval, err)
	}
	log.Debug().Str("course", course.Title).Int("chunks", len(chunks)).Msg("Upserted course")
	return len(chunks), nil
}

// Course looks a course up by its exact title.
func (v *VectorIndex) Course(ctx context.Context, title string) (models.CatalogEntry, error) {
	return v.backend.GetCatalogEntry(ctx, title)
}

func (v *VectorIndex) CourseStats(ctx context.Context) (models.CourseStats, error) {
	titles, err := v.backend.CourseTitles(ctx)
	if err != nil {
		return models.CourseStats{}, fmt.Errorf("%w: failed to list courses: %w", models.ErrRetrieval, err)
	}
	if titles == nil {
		titles = []string{}
	}
	return models.CourseStats{TotalCourses: len(titles), CourseTitles: titles}, nil
}

func (v *VectorIndex) ChunkCount(ctx context.Context) (int, error) {
	return v.backend.ChunkCount(ctx)
}

// NeedsReingest reports whether the stored index was dropped on open
// because it was built with different settings.
func (v *VectorIndex) NeedsReingest() bool {
	return v.backend.WasReset()
}

func (v *VectorIndex) Close() error {
	return v.backend.Close()
}

func (v *VectorIndex) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := v.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %w", models.ErrRetrieval, err)
	}
	return vec, nil
}
