package chunker

import (
	"fmt"
	"strings"

	"course-rag/internal/models"
)

// Position is where a lesson sits inside its course.
type Position int

const (
	First Position = iota
	Middle
	Last
)

// Chunker splits lesson content into overlapping, sentence-aligned chunks.
// Size and overlap are counted in runes and exclude injected headers.
type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", models.ErrConfiguration, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// ChunkCourse chunks every lesson in order. Chunk indexes start at 0 and are
// gap-free across the whole course.
func (c *Chunker) ChunkCourse(course models.Course) []models.Chunk {
	var chunks []models.Chunk
	n := len(course.Lessons)
	for i, lesson := range course.Lessons {
		chunks = append(chunks, c.ChunkLesson(course.Title, lesson, positionOf(i, n), len(chunks))...)
	}
	return chunks
}

func positionOf(i, n int) Position {
	switch {
	case i == 0:
		return First
	case i == n-1:
		return Last
	default:
		return Middle
	}
}

// ChunkLesson chunks one lesson, numbering chunks from base. The first chunk
// carries the lesson header; every chunk of the last lesson carries the
// course header instead.
func (c *Chunker) ChunkLesson(courseTitle string, lesson models.Lesson, pos Position, base int) []models.Chunk {
	bodies := c.Split(lesson.Content)
	chunks := make([]models.Chunk, 0, len(bodies))
	for i, body := range bodies {
		text := body
		switch {
		case pos == Last:
			text = fmt.Sprintf(models.CourseHeaderFormat, courseTitle, lesson.Number) + body
		case i == 0:
			text = fmt.Sprintf(models.LessonHeaderFormat, lesson.Number) + body
		}
		chunks = append(chunks, models.Chunk{
			Text:         text,
			CourseTitle:  courseTitle,
			LessonNumber: lesson.Number,
			ChunkIndex:   base + i,
		})
	}
	return chunks
}

// Split returns the header-less chunk bodies for content. Empty content
// yields no chunks.
func (c *Chunker) Split(content string) []string {
	var units []string
	for _, s := range splitSentences(content) {
		units = append(units, splitLong(s, c.size)...)
	}
	if len(units) == 0 {
		return nil
	}

	var chunks []string
	var cur []string
	curLen := 0
	for i := 0; i < len(units); {
		s := units[i]
		add := runeLen(s)
		if len(cur) > 0 {
			add++
		}
		if len(cur) == 0 || curLen+add <= c.size {
			cur = append(cur, s)
			curLen += add
			i++
			continue
		}
		chunks = append(chunks, strings.Join(cur, " "))
		cur = c.overlapTail(cur, runeLen(s))
		curLen = joinedLen(cur)
	}
	chunks = append(chunks, strings.Join(cur, " "))
	return chunks
}

// overlapTail picks the trailing whole sentences of a finished chunk that
// start the next one. It never repeats the whole chunk and always leaves room
// for the next sentence of length next.
func (c *Chunker) overlapTail(sentences []string, next int) []string {
	k := 0
	length := 0
	for j := len(sentences) - 1; j >= 1; j-- {
		l := runeLen(sentences[j])
		if k > 0 {
			l++
		}
		if length+l > c.overlap {
			break
		}
		length += l
		k++
	}
	tail := append([]string(nil), sentences[len(sentences)-k:]...)
	for len(tail) > 0 && joinedLen(tail)+1+next > c.size {
		tail = tail[1:]
	}
	return tail
}

func joinedLen(parts []string) int {
	if len(parts) == 0 {
		return 0
	}
	n := len(parts) - 1
	for _, p := range parts {
		n += runeLen(p)
	}
	return n
}
