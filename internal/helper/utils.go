package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	"course-rag/internal/models"
)

// pretty print
func PrettyPrint(w io.Writer, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return
	}
	fmt.Fprintln(w, string(b))
}

// FormatSource renders a source as "Course - Lesson n".
func FormatSource(s models.Source) string {
	if s.LessonNumber == nil {
		return s.CourseTitle
	}
	return fmt.Sprintf("%s - Lesson %d", s.CourseTitle, *s.LessonNumber)
}

// UniqueSources drops repeated sources, keeping first-seen order.
func UniqueSources(sources []models.Source) []models.Source {
	seen := map[string]bool{}
	out := make([]models.Source, 0, len(sources))
	for _, s := range sources {
		key := strings.Join([]string{FormatSource(s), s.Link}, "|")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
