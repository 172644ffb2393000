package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIngestionError(t *testing.T) {
	t.Run("matches ErrIngestion", func(t *testing.T) {
		err := &IngestionError{Path: "a.txt", Reason: "missing course title"}
		assert.ErrorIs(t, err, ErrIngestion)
		assert.Equal(t, "ingest a.txt: missing course title", err.Error())
	})

	t.Run("keeps the cause", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := &IngestionError{Path: "b.pdf", Reason: "read file", Err: cause}
		assert.ErrorIs(t, err, ErrIngestion)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "permission denied")
	})
}

func TestDuplicateToolIsConfigurationError(t *testing.T) {
	assert.ErrorIs(t, ErrDuplicateTool, ErrConfiguration)
}

func TestCatalogEntryLessonLink(t *testing.T) {
	entry := NewCatalogEntry(Course{
		Title: "Widgets 101",
		Link:  "https://example.com/widgets",
		Lessons: []Lesson{
			{Number: 1, Title: "Intro", Link: "https://example.com/widgets/1"},
			{Number: 2, Title: "Gears"},
		},
	})

	assert.Equal(t, "https://example.com/widgets/1", entry.LessonLink(1))
	assert.Equal(t, "https://example.com/widgets", entry.LessonLink(2))
	assert.Equal(t, "https://example.com/widgets", entry.LessonLink(9))
	assert.Len(t, entry.Lessons, 2)
}
