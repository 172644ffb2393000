package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"course-rag/internal/models"
)

type OutlineInput struct {
	CourseName string `json:"course_name" jsonschema:"course title, partial matches work"`
}

// OutlineTool returns a course's link, instructor and lesson list.
type OutlineTool struct {
	index Index
}

func NewOutlineTool(index Index) *OutlineTool {
	return &OutlineTool{index: index}
}

func (t *OutlineTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        models.OutlineToolName,
		Description: "Get the outline of a course: title, link, instructor and the numbered list of lessons",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"course_name": map[string]any{
					"type":        "string",
					"description": "Course title (partial matches work)",
				},
			},
			"required": []string{"course_name"},
		},
	}
}

func (t *OutlineTool) Invoke(ctx context.Context, args json.RawMessage) (models.ToolResult, error) {
	var in OutlineInput
	if err := decodeArgs(args, &in); err != nil {
		return models.ToolResult{}, err
	}
	return t.Outline(ctx, in)
}

func (t *OutlineTool) Outline(ctx context.Context, in OutlineInput) (models.ToolResult, error) {
	if strings.TrimSpace(in.CourseName) == "" {
		return models.ToolResult{}, errors.New("course_name is required")
	}
	entry, err := t.index.ResolveCourse(ctx, in.CourseName)
	if errors.Is(err, models.ErrCourseNotFound) {
		return models.ToolResult{}, &MissError{Name: in.CourseName}
	}
	if err != nil {
		return models.ToolResult{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", entry.Title)
	fmt.Fprintf(&b, "Course Link: %s\n", entry.Link)
	fmt.Fprintf(&b, "Instructor: %s\n", entry.Instructor)
	b.WriteString("Lessons:")
	for _, l := range entry.Lessons {
		fmt.Fprintf(&b, "\nLesson %d: %s", l.Number, l.Title)
	}

	return models.ToolResult{
		Text:    b.String(),
		Sources: []models.Source{{CourseTitle: entry.Title, Link: entry.Link}},
	}, nil
}
