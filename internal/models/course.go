package models

// Course is one ingested course document, keyed by title.
type Course struct {
	Title      string   `json:"title"`
	Link       string   `json:"link"`
	Instructor string   `json:"instructor"`
	Lessons    []Lesson `json:"lessons"`
}

// Lesson is owned by its Course. Numbers are unique within the course but
// need not start at zero or be contiguous.
type Lesson struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Content string `json:"content"`
}

// LessonRef is the lesson outline stored with a catalog entry.
type LessonRef struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Link   string `json:"link,omitempty"`
}

// CatalogEntry is the course-level record used for course name resolution.
type CatalogEntry struct {
	Title      string      `json:"title"`
	Link       string      `json:"link"`
	Instructor string      `json:"instructor"`
	Lessons    []LessonRef `json:"lessons"`
}

// NewCatalogEntry builds the catalog record for a course.
func NewCatalogEntry(c Course) CatalogEntry {
	refs := make([]LessonRef, 0, len(c.Lessons))
	for _, l := range c.Lessons {
		refs = append(refs, LessonRef{Number: l.Number, Title: l.Title, Link: l.Link})
	}
	return CatalogEntry{
		Title:      c.Title,
		Link:       c.Link,
		Instructor: c.Instructor,
		Lessons:    refs,
	}
}

// LessonLink returns the link of the given lesson, falling back to the
// course link when the lesson has none or is unknown.
func (e CatalogEntry) LessonLink(number int) string {
	for _, l := range e.Lessons {
		if l.Number == number && l.Link != "" {
			return l.Link
		}
	}
	return e.Link
}

// CourseStats summarizes the catalog.
type CourseStats struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}
