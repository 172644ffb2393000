package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-rag/internal/chromemdb"
	"course-rag/internal/chunker"
	"course-rag/internal/embedding"
	"course-rag/internal/models"
)

func newIndex(t *testing.T, threshold float32) *VectorIndex {
	t.Helper()
	backend, err := chromemdb.NewVectorDBManager(chromemdb.Options{InMemory: true, Fingerprint: "test"})
	require.NoError(t, err)
	c, err := chunker.New(200, 40)
	require.NoError(t, err)
	return New(backend, embedding.NewHashEmbedder(512), c, threshold, 5)
}

var widgets = models.Course{
	Title:      "Introduction to Widgets",
	Link:       "https://example.com/widgets",
	Instructor: "Ada",
	Lessons: []models.Lesson{
		{Number: 0, Title: "Welcome", Link: "https://example.com/widgets/0", Content: "Widgets are small mechanical parts. They are cheap."},
		{Number: 1, Title: "Gears", Content: "Gears transfer rotational motion between shafts. Teeth mesh together."},
	},
}

var baking = models.Course{
	Title: "Sourdough Baking",
	Lessons: []models.Lesson{
		{Number: 1, Title: "Starter", Content: "A starter ferments flour and water. Feed it daily."},
	},
}

func TestResolveCourse(t *testing.T) {
	ctx := context.Background()

	t.Run("fuzzy match", func(t *testing.T) {
		idx := newIndex(t, 0.5)
		_, err := idx.UpsertCourse(ctx, widgets)
		require.NoError(t, err)

		entry, err := idx.ResolveCourse(ctx, "Intro to Widgets")
		require.NoError(t, err)
		assert.Equal(t, "Introduction to Widgets", entry.Title)
		assert.Equal(t, "https://example.com/widgets/0", entry.LessonLink(0))
	})

	t.Run("no similar title", func(t *testing.T) {
		idx := newIndex(t, 0.5)
		_, err := idx.UpsertCourse(ctx, baking)
		require.NoError(t, err)

		_, err = idx.ResolveCourse(ctx, "Intro to Widgets")
		assert.ErrorIs(t, err, models.ErrCourseNotFound)
	})

	t.Run("always best match", func(t *testing.T) {
		idx := newIndex(t, AlwaysBestMatch)
		_, err := idx.UpsertCourse(ctx, baking)
		require.NoError(t, err)

		entry, err := idx.ResolveCourse(ctx, "Intro to Widgets")
		require.NoError(t, err)
		assert.Equal(t, "Sourdough Baking", entry.Title)
	})

	t.Run("empty catalog", func(t *testing.T) {
		idx := newIndex(t, AlwaysBestMatch)
		_, err := idx.ResolveCourse(ctx, "anything")
		assert.ErrorIs(t, err, models.ErrCourseNotFound)
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, 0.5)

	results, err := idx.Search(ctx, "widgets", models.SearchFilter{}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	for _, c := range []models.Course{widgets, baking} {
		_, err := idx.UpsertCourse(ctx, c)
		require.NoError(t, err)
	}

	t.Run("global", func(t *testing.T) {
		results, err := idx.Search(ctx, "flour and water starter", models.SearchFilter{}, 5)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "Sourdough Baking", results[0].Chunk.CourseTitle)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		}
	})

	t.Run("course filter", func(t *testing.T) {
		results, err := idx.Search(ctx, "flour and water starter", models.SearchFilter{CourseTitle: widgets.Title}, 5)
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, r := range results {
			assert.Equal(t, widgets.Title, r.Chunk.CourseTitle)
		}
	})

	t.Run("course and lesson filter", func(t *testing.T) {
		lesson := 1
		results, err := idx.Search(ctx, "motion", models.SearchFilter{CourseTitle: widgets.Title, LessonNumber: &lesson}, 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, 1, results[0].Chunk.LessonNumber)
		assert.Contains(t, results[0].Chunk.Text, "Course Introduction to Widgets Lesson 1 content: ")
	})

	t.Run("top k", func(t *testing.T) {
		results, err := idx.Search(ctx, "parts", models.SearchFilter{}, 1)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})
}

func TestUpsertCourseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t, 0.5)

	first, err := idx.UpsertCourse(ctx, widgets)
	require.NoError(t, err)
	before, err := idx.ChunkCount(ctx)
	require.NoError(t, err)

	second, err := idx.UpsertCourse(ctx, widgets)
	require.NoError(t, err)
	after, err := idx.ChunkCount(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, after)

	stats, err := idx.CourseStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CourseStats{TotalCourses: 1, CourseTitles: []string{widgets.Title}}, stats)

	entry, err := idx.Course(ctx, widgets.Title)
	require.NoError(t, err)
	assert.Equal(t, "Ada", entry.Instructor)
}

type failingEmbedder struct{}

var errEmbed = errors.New("model unavailable")

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) { return nil, errEmbed }
func (failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errEmbed
}

func TestEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	backend, err := chromemdb.NewVectorDBManager(chromemdb.Options{InMemory: true})
	require.NoError(t, err)
	c, err := chunker.New(200, 40)
	require.NoError(t, err)
	idx := New(backend, failingEmbedder{}, c, 0.5, 5)

	_, err = idx.Search(ctx, "q", models.SearchFilter{}, 5)
	assert.ErrorIs(t, err, models.ErrRetrieval)
	assert.ErrorIs(t, err, errEmbed)

	_, err = idx.ResolveCourse(ctx, "q")
	assert.ErrorIs(t, err, models.ErrRetrieval)

	_, err = idx.UpsertCourse(ctx, widgets)
	assert.ErrorIs(t, err, models.ErrRetrieval)
}

func TestCourseStatsEmpty(t *testing.T) {
	stats, err := newIndex(t, 0.5).CourseStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalCourses)
	assert.NotNil(t, stats.CourseTitles)
}

var errStore = errors.New("store unavailable")

type flakyBackend struct {
	Backend
	failChunks  bool
	failCatalog bool
}

func (f *flakyBackend) ReplaceChunks(ctx context.Context, title string, chunks []models.Chunk, vectors [][]float32) error {
	if f.failChunks {
		return errStore
	}
	return f.Backend.ReplaceChunks(ctx, title, chunks, vectors)
}

func (f *flakyBackend) UpsertCatalog(ctx context.Context, entry models.CatalogEntry, vector []float32) error {
	if f.failCatalog {
		return errStore
	}
	return f.Backend.UpsertCatalog(ctx, entry, vector)
}

func TestUpsertCourseStoreFailure(t *testing.T) {
	ctx := context.Background()
	newFlaky := func(t *testing.T) *flakyBackend {
		manager, err := chromemdb.NewVectorDBManager(chromemdb.Options{InMemory: true, Fingerprint: "test"})
		require.NoError(t, err)
		return &flakyBackend{Backend: manager}
	}
	c, err := chunker.New(200, 40)
	require.NoError(t, err)

	t.Run("chunk failure leaves no catalog entry", func(t *testing.T) {
		backend := newFlaky(t)
		backend.failChunks = true
		idx := New(backend, embedding.NewHashEmbedder(512), c, 0.5, 5)

		_, err := idx.UpsertCourse(ctx, widgets)
		require.ErrorIs(t, err, models.ErrRetrieval)
		assert.ErrorIs(t, err, errStore)

		stats, err := idx.CourseStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalCourses)
		_, err = idx.Course(ctx, widgets.Title)
		assert.ErrorIs(t, err, models.ErrCourseNotFound)
	})

	t.Run("catalog failure is reported", func(t *testing.T) {
		backend := newFlaky(t)
		backend.failCatalog = true
		idx := New(backend, embedding.NewHashEmbedder(512), c, 0.5, 5)

		_, err := idx.UpsertCourse(ctx, widgets)
		require.ErrorIs(t, err, models.ErrRetrieval)

		backend.failCatalog = false
		n, err := idx.UpsertCourse(ctx, widgets)
		require.NoError(t, err)
		count, err := idx.ChunkCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, n, count)
	})
}

func TestNeedsReingest(t *testing.T) {
	dir := t.TempDir()
	open := func(fingerprint string) *VectorIndex {
		backend, err := chromemdb.NewVectorDBManager(chromemdb.Options{Path: dir, Fingerprint: fingerprint})
		require.NoError(t, err)
		c, err := chunker.New(200, 40)
		require.NoError(t, err)
		return New(backend, embedding.NewHashEmbedder(512), c, 0.5, 5)
	}

	idx := open("a")
	assert.False(t, idx.NeedsReingest())
	require.NoError(t, idx.Close())

	idx = open("b")
	t.Cleanup(func() { _ = idx.Close() })
	assert.True(t, idx.NeedsReingest())
}
