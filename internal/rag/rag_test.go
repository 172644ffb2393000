package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"course-rag/internal/config"
	"course-rag/internal/embedding"
	"course-rag/internal/models"
)

const widgetsDoc = `Course Title: Introduction to Widgets
Course Link: https://example.com/widgets
Course Instructor: Ada Lovelace

Lesson 0: Welcome
Lesson Link: https://example.com/widgets/0
Widgets are small mechanical parts. They are cheap. They are everywhere.

Lesson 1: Gears
Gears transfer rotational motion between shafts. Teeth mesh together.
`

const bakingDoc = `Course Title: Sourdough Baking
Course Link: https://example.com/bread
Course Instructor: Paul

Lesson 1: Starter
A starter ferments flour and water. Feed it daily.
`

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.EmbedLLM.Provider = "hash"
	cfg.Index.InMemory = true
	cfg.RAG.ChunkSize = 200
	cfg.RAG.ChunkOverlap = 40
	cfg.RAG.IngestWorkers = 2
	return cfg
}

func newTestSystem(t *testing.T, model Generator) *System {
	t.Helper()
	cfg := testConfig()
	idx, err := NewIndex(context.Background(), cfg, embedding.NewHashEmbedder(512))
	require.NoError(t, err)
	sys, err := New(cfg, idx, model)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close() })
	return sys
}

func writeDocs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestIngestFolder(t *testing.T) {
	ctx := context.Background()
	dir := writeDocs(t, map[string]string{
		"widgets.txt": widgetsDoc,
		"baking.txt":  bakingDoc,
		"broken.txt":  "Lesson 1: no header\ntext",
		"notes.md":    "ignored",
	})
	sys := newTestSystem(t, &scriptedModel{})

	report, err := sys.IngestFolder(ctx, dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Introduction to Widgets", "Sourdough Baking"}, report.Courses)
	assert.Positive(t, report.Chunks)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, filepath.Join(dir, "broken.txt"), report.Failures[0].Path)

	stats, err := sys.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCourses)

	t.Run("re-ingest is idempotent", func(t *testing.T) {
		before, err := sys.index.ChunkCount(ctx)
		require.NoError(t, err)
		again, err := sys.IngestFolder(ctx, dir)
		require.NoError(t, err)
		after, err := sys.index.ChunkCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Equal(t, report.Chunks, again.Chunks)
	})

	t.Run("missing folder", func(t *testing.T) {
		_, err := sys.IngestFolder(ctx, filepath.Join(dir, "nope"))
		assert.ErrorIs(t, err, models.ErrIngestion)
	})
}

func TestParseFolderDuplicateTitles(t *testing.T) {
	dir := writeDocs(t, map[string]string{"a.txt": bakingDoc, "b.txt": bakingDoc})
	sys := newTestSystem(t, &scriptedModel{})

	report, err := sys.IngestFolder(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sourdough Baking"}, report.Courses)

	n, err := sys.index.ChunkCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n, report.Chunks)
}

func TestQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("empty query", func(t *testing.T) {
		sys := newTestSystem(t, &scriptedModel{})
		_, err := sys.Query(ctx, "  ", "")
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("records history", func(t *testing.T) {
		model := &scriptedModel{responses: []*llms.ContentChoice{{Content: "Hello!"}, {Content: "Again."}}}
		sys := newTestSystem(t, model)

		resp, err := sys.Query(ctx, "Hi", "")
		require.NoError(t, err)
		assert.Equal(t, "Hello!", resp.Answer)
		assert.NotEmpty(t, resp.SessionID)
		assert.NotNil(t, resp.Sources)

		_, err = sys.Query(ctx, "Hi again", resp.SessionID)
		require.NoError(t, err)
		// system, previous pair, new query
		assert.Len(t, model.messages[1], 4)
		assert.Len(t, sys.Sessions().Get(resp.SessionID), 4)
	})

	t.Run("failure leaves history untouched", func(t *testing.T) {
		sys := newTestSystem(t, &scriptedModel{})
		_, err := sys.Query(ctx, "Hi", "s1")
		assert.ErrorIs(t, err, models.ErrModelCall)
		assert.Empty(t, sys.Sessions().Get("s1"))
	})

	t.Run("queued turn gives up when context ends", func(t *testing.T) {
		sys := newTestSystem(t, &scriptedModel{responses: []*llms.ContentChoice{{Content: "Late."}}})
		earlier := sys.Sessions().Begin("s2")

		qctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		_, err := sys.Query(qctx, "Hi", "s2")
		require.ErrorIs(t, err, context.DeadlineExceeded)

		earlier.Commit("first", "answer")
		history := sys.Sessions().Get("s2")
		require.Len(t, history, 2)
		assert.Equal(t, "first", history[0].Content)
	})

	t.Run("search with sources", func(t *testing.T) {
		model := &scriptedModel{responses: []*llms.ContentChoice{
			{ToolCalls: []llms.ToolCall{toolCall("c1", models.SearchToolName, `{"query":"what are widgets","course_name":"Widgets","lesson_number":0}`)}},
			{Content: "Widgets are small mechanical parts."},
		}}
		sys := newTestSystem(t, model)
		dir := writeDocs(t, map[string]string{"widgets.txt": widgetsDoc})
		_, err := sys.IngestFolder(ctx, dir)
		require.NoError(t, err)

		resp, err := sys.Query(ctx, "What are widgets?", "")
		require.NoError(t, err)
		require.NotEmpty(t, resp.Sources)
		src := resp.Sources[0]
		assert.Equal(t, "Introduction to Widgets", src.CourseTitle)
		require.NotNil(t, src.LessonNumber)
		assert.Equal(t, 0, *src.LessonNumber)
		assert.Equal(t, "https://example.com/widgets/0", src.Link)

		result := model.messages[1][3].Parts[0].(llms.ToolCallResponse)
		assert.Contains(t, result.Content, "[Introduction to Widgets - Lesson 0]")
	})
}

func TestShouldReingest(t *testing.T) {
	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"create txt", fsnotify.Event{Name: "/docs/a.txt", Op: fsnotify.Create}, true},
		{"write pdf", fsnotify.Event{Name: "/docs/a.pdf", Op: fsnotify.Write}, true},
		{"remove", fsnotify.Event{Name: "/docs/a.txt", Op: fsnotify.Remove}, false},
		{"chmod", fsnotify.Event{Name: "/docs/a.txt", Op: fsnotify.Chmod}, false},
		{"hidden", fsnotify.Event{Name: "/docs/.a.txt", Op: fsnotify.Create}, false},
		{"unsupported", fsnotify.Event{Name: "/docs/a.md", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldReingest(tt.ev))
		})
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	sys := newTestSystem(t, &scriptedModel{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sys.Watch(ctx, dir) }()
	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "baking.txt"), []byte(bakingDoc), 0o644))
	require.Eventually(t, func() bool {
		stats, err := sys.Stats(context.Background())
		return err == nil && stats.TotalCourses == 1
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
