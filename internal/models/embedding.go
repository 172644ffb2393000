package models

// Chunk is a slice of lesson text stored in the content collection.
// Text carries any injected context header verbatim.
type Chunk struct {
	Text         string `json:"text"`
	CourseTitle  string `json:"course_title"`
	LessonNumber int    `json:"lesson_number"`
	ChunkIndex   int    `json:"chunk_index"`
}

// SearchFilter restricts a content search. A nil LessonNumber means any lesson.
type SearchFilter struct {
	CourseTitle  string
	LessonNumber *int
}

// SearchResult is a matching chunk with its cosine similarity.
type SearchResult struct {
	Chunk Chunk
	Score float32
}

// CourseMatch is a catalog hit with its cosine similarity.
type CourseMatch struct {
	Entry CatalogEntry
	Score float32
}
