package models

// ToolDefinition describes a tool to the language model. Parameters is a
// JSON schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Source identifies where a retrieved passage came from.
type Source struct {
	CourseTitle  string `json:"course_title"`
	LessonNumber *int   `json:"lesson_number,omitempty"`
	Link         string `json:"link,omitempty"`
}

// ToolResult is the output of one tool invocation.
type ToolResult struct {
	Text    string
	Sources []Source
}
