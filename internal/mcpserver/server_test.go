package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"course-rag/internal/models"
	"course-rag/internal/tools"
)

type stubTool struct {
	name   string
	result models.ToolResult
	err    error
	args   json.RawMessage
}

func (t *stubTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{Name: t.name}
}

func (t *stubTool) Invoke(_ context.Context, args json.RawMessage) (models.ToolResult, error) {
	t.args = args
	return t.result, t.err
}

type stubCatalog struct {
	stats models.CourseStats
}

func (c stubCatalog) Stats(context.Context) (models.CourseStats, error) {
	return c.stats, nil
}

func newTestServer(t *testing.T, stubs ...*stubTool) *Server {
	t.Helper()
	registry := tools.NewRegistry()
	for _, s := range stubs {
		require.NoError(t, registry.Register(s))
	}
	return NewServer(registry, stubCatalog{stats: models.CourseStats{TotalCourses: 1, CourseTitles: []string{"Widgets"}}})
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandleSearch(t *testing.T) {
	ctx := context.Background()
	lesson := 2

	t.Run("returns text and sources", func(t *testing.T) {
		search := &stubTool{
			name: models.SearchToolName,
			result: models.ToolResult{
				Text:    "[Widgets - Lesson 2]\nGears mesh.",
				Sources: []models.Source{{CourseTitle: "Widgets", LessonNumber: &lesson}},
			},
		}
		s := newTestServer(t, search)

		res, out, err := s.handleSearch(ctx, nil, tools.SearchInput{Query: "gears", CourseName: "Widgets", LessonNumber: &lesson})
		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.Equal(t, "[Widgets - Lesson 2]\nGears mesh.", textOf(t, res))
		require.Len(t, out.Sources, 1)
		assert.Equal(t, "Widgets", out.Sources[0].CourseTitle)
		assert.JSONEq(t, `{"query":"gears","course_name":"Widgets","lesson_number":2}`, string(search.args))
	})

	t.Run("course miss is a tool error", func(t *testing.T) {
		search := &stubTool{name: models.SearchToolName, err: &tools.MissError{Name: "Cooking"}}
		s := newTestServer(t, search)

		res, out, err := s.handleSearch(ctx, nil, tools.SearchInput{Query: "x", CourseName: "Cooking"})
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Equal(t, "No course found matching 'Cooking'", textOf(t, res))
		assert.Empty(t, out.Sources)
	})

	t.Run("retrieval failure is returned", func(t *testing.T) {
		search := &stubTool{name: models.SearchToolName, err: fmt.Errorf("%w: offline", models.ErrRetrieval)}
		s := newTestServer(t, search)

		_, _, err := s.handleSearch(ctx, nil, tools.SearchInput{Query: "x"})
		assert.ErrorIs(t, err, models.ErrRetrieval)
	})
}

func TestHandleOutline(t *testing.T) {
	outline := &stubTool{
		name: models.OutlineToolName,
		result: models.ToolResult{
			Text:    "Course: Widgets\nLessons:\nLesson 1: Gears",
			Sources: []models.Source{{CourseTitle: "Widgets", Link: "https://example.com/w"}},
		},
	}
	s := newTestServer(t, outline)

	res, out, err := s.handleOutline(context.Background(), nil, tools.OutlineInput{CourseName: "widg"})
	require.NoError(t, err)
	assert.Contains(t, textOf(t, res), "Lesson 1: Gears")
	assert.Len(t, out.Sources, 1)
	assert.JSONEq(t, `{"course_name":"widg"}`, string(outline.args))
}

func TestUnregisteredTool(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleOutline(context.Background(), nil, tools.OutlineInput{CourseName: "x"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "tool not found")
}

func TestHandleCatalog(t *testing.T) {
	s := newTestServer(t)
	res, err := s.handleCatalog(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: catalogURI},
	})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, catalogURI, res.Contents[0].URI)
	assert.JSONEq(t, `{"total_courses":1,"course_titles":["Widgets"]}`, res.Contents[0].Text)
}
