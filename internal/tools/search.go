package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"course-rag/internal/models"
)

// Index is the part of the vector index the tools need.
type Index interface {
	ResolveCourse(ctx context.Context, name string) (models.CatalogEntry, error)
	Search(ctx context.Context, query string, filter models.SearchFilter, topK int) ([]models.SearchResult, error)
	Course(ctx context.Context, title string) (models.CatalogEntry, error)
}

// MissError reports a course name that resolved to nothing usable. Its
// message is meant for the language model and the user.
type MissError struct {
	Name string
}

func (e *MissError) Error() string {
	return fmt.Sprintf("No course found matching '%s'", e.Name)
}

func (e *MissError) Is(target error) bool {
	return target == models.ErrCourseNotFound
}

type SearchInput struct {
	Query        string `json:"query" jsonschema:"what to search for in the course content"`
	CourseName   string `json:"course_name,omitempty" jsonschema:"course title, partial matches work (e.g. 'MCP', 'Introduction')"`
	LessonNumber *int   `json:"lesson_number,omitempty" jsonschema:"specific lesson number to search within (e.g. 1, 2, 3)"`
}

// SearchTool runs semantic search over course content, optionally limited to
// one course and lesson.
type SearchTool struct {
	index Index
	topK  int
}

func NewSearchTool(index Index, topK int) *SearchTool {
	return &SearchTool{index: index, topK: topK}
}

func (t *SearchTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        models.SearchToolName,
		Description: "Search course materials with smart course name matching and lesson filtering",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to search for in the course content",
				},
				"course_name": map[string]any{
					"type":        "string",
					"description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
				"lesson_number": map[string]any{
					"type":        "integer",
					"description": "Specific lesson number to search within (e.g. 1, 2, 3)",
				},
			},
			"required": []string{"query"},
		},
	}
}

func (t *SearchTool) Invoke(ctx context.Context, args json.RawMessage) (models.ToolResult, error) {
	var in SearchInput
	if err := decodeArgs(args, &in); err != nil {
		return models.ToolResult{}, err
	}
	return t.Search(ctx, in)
}

// Search resolves the course filter, if any, and formats ranked results.
func (t *SearchTool) Search(ctx context.Context, in SearchInput) (models.ToolResult, error) {
	if strings.TrimSpace(in.Query) == "" {
		return models.ToolResult{}, errors.New("query is required")
	}

	filter := models.SearchFilter{LessonNumber: in.LessonNumber}
	entries := map[string]models.CatalogEntry{}
	if in.CourseName != "" {
		entry, err := t.index.ResolveCourse(ctx, in.CourseName)
		if errors.Is(err, models.ErrCourseNotFound) {
			return models.ToolResult{}, &MissError{Name: in.CourseName}
		}
		if err != nil {
			return models.ToolResult{}, err
		}
		filter.CourseTitle = entry.Title
		entries[entry.Title] = entry
	}

	results, err := t.index.Search(ctx, in.Query, filter, t.topK)
	if err != nil {
		return models.ToolResult{}, err
	}
	log.Debug().Str("query", in.Query).Str("course", filter.CourseTitle).Int("results", len(results)).Msg("Searched course content")

	if len(results) == 0 {
		return models.ToolResult{Text: emptyMessage(filter)}, nil
	}

	parts := make([]string, 0, len(results))
	sources := make([]models.Source, 0, len(results))
	for _, r := range results {
		c := r.Chunk
		parts = append(parts, fmt.Sprintf("[%s - Lesson %d]\n%s", c.CourseTitle, c.LessonNumber, c.Text))

		entry, ok := entries[c.CourseTitle]
		if !ok {
			entry, err = t.index.Course(ctx, c.CourseTitle)
			switch {
			case errors.Is(err, models.ErrCourseNotFound):
				log.Warn().Str("course", c.CourseTitle).Msg("Catalog entry missing for search result")
				entry = models.CatalogEntry{Title: c.CourseTitle}
			case err != nil:
				return models.ToolResult{}, err
			}
			entries[c.CourseTitle] = entry
		}
		lesson := c.LessonNumber
		sources = append(sources, models.Source{
			CourseTitle:  c.CourseTitle,
			LessonNumber: &lesson,
			Link:         entry.LessonLink(lesson),
		})
	}
	return models.ToolResult{Text: strings.Join(parts, "\n\n"), Sources: sources}, nil
}

func emptyMessage(filter models.SearchFilter) string {
	msg := "No relevant content found"
	if filter.CourseTitle != "" {
		msg += fmt.Sprintf(" in course '%s'", filter.CourseTitle)
	}
	if filter.LessonNumber != nil {
		msg += fmt.Sprintf(" in lesson %d", *filter.LessonNumber)
	}
	return msg + "."
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}
