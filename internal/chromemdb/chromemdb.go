package chromemdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"course-rag/internal/models"
)

const (
	CatalogCollection = "course_catalog"
	ContentCollection = "course_content"
	manifestFile      = "course_rag_index.json"
)

// metadata keys
const (
	metaCourseTitle  = "course_title"
	metaLessonNumber = "lesson_number"
	metaChunkIndex   = "chunk_index"
	metaLink         = "link"
	metaInstructor   = "instructor"
	metaLessons      = "lessons_json"
)

var errNoEmbeddingFunc = errors.New("documents must be embedded before they are stored")

// VectorDBManager keeps the catalog and content collections in chromem-go.
type VectorDBManager struct {
	db       *chromem.DB
	catalog  *chromem.Collection
	content  *chromem.Collection
	dbPath   string
	inMemory bool

	mu       sync.Mutex
	manifest manifest
	reset    bool
}

// manifest records what the persisted collections were built with
type manifest struct {
	Fingerprint string   `json:"fingerprint"`
	Courses     []string `json:"courses"`
}

type Options struct {
	Path     string
	InMemory bool
	Compress bool
	// Fingerprint identifies chunking and embedding settings. Collections
	// built with a different fingerprint are dropped on open.
	Fingerprint string
}

// NewVectorDBManager opens (or creates) both collections
func NewVectorDBManager(opts Options) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if opts.InMemory {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index folder: %w", err)
		}
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:       db,
		dbPath:   opts.Path,
		inMemory: opts.InMemory,
	}
	if err := m.openCollections(); err != nil {
		return nil, err
	}

	stored, err := m.readManifest()
	if err != nil {
		return nil, err
	}
	hasData := m.catalog.Count() > 0 || m.content.Count() > 0
	if hasData && stored.Fingerprint != opts.Fingerprint {
		log.Warn().Str("stored", stored.Fingerprint).Str("current", opts.Fingerprint).Msg("Index settings changed, dropping stored collections")
		if err := m.dropCollections(); err != nil {
			return nil, err
		}
		stored = manifest{}
		m.reset = true
	}
	stored.Fingerprint = opts.Fingerprint
	m.manifest = stored
	if err := m.writeManifest(); err != nil {
		return nil, err
	}
	return m, nil
}

// WasReset reports whether stale collections were dropped on open.
func (m *VectorDBManager) WasReset() bool {
	return m.reset
}

// create or read collections
func (m *VectorDBManager) openCollections() error {
	var err error
	m.catalog, err = m.db.GetOrCreateCollection(CatalogCollection, nil, precomputed)
	if err != nil {
		return fmt.Errorf("failed to create/get collection %s: %w", CatalogCollection, err)
	}
	m.content, err = m.db.GetOrCreateCollection(ContentCollection, nil, precomputed)
	if err != nil {
		return fmt.Errorf("failed to create/get collection %s: %w", ContentCollection, err)
	}
	return nil
}

func (m *VectorDBManager) dropCollections() error {
	for _, name := range []string{CatalogCollection, ContentCollection} {
		if err := m.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("failed to drop collection %s: %w", name, err)
		}
	}
	return m.openCollections()
}

// precomputed is the collection embedding func; every document and query
// already carries its vector
func precomputed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

func (m *VectorDBManager) UpsertCatalog(ctx context.Context, entry models.CatalogEntry, vector []float32) error {
	lessons, err := json.Marshal(entry.Lessons)
	if err != nil {
		return fmt.Errorf("failed to encode lessons: %w", err)
	}
	doc := chromem.Document{
		ID:      entry.Title,
		Content: entry.Title,
		Metadata: map[string]string{
			metaCourseTitle: entry.Title,
			metaLink:        entry.Link,
			metaInstructor:  entry.Instructor,
			metaLessons:     string(lessons),
		},
		Embedding: vector,
	}
	if err := m.catalog.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("failed to add catalog entry: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.manifest.Courses {
		if t == entry.Title {
			return nil
		}
	}
	m.manifest.Courses = append(m.manifest.Courses, entry.Title)
	sort.Strings(m.manifest.Courses)
	return m.writeManifest()
}

func (m *VectorDBManager) ReplaceChunks(ctx context.Context, courseTitle string, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if err := m.content.Delete(ctx, map[string]string{metaCourseTitle: courseTitle}, nil); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", courseTitle, err)
	}
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("%s_%d", c.CourseTitle, c.ChunkIndex),
			Content: c.Text,
			Metadata: map[string]string{
				metaCourseTitle:  c.CourseTitle,
				metaLessonNumber: strconv.Itoa(c.LessonNumber),
				metaChunkIndex:   strconv.Itoa(c.ChunkIndex),
			},
			Embedding: vectors[i],
		}
	}
	if err := m.content.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add chunks: %w", err)
	}
	return nil
}

func (m *VectorDBManager) NearestCourses(ctx context.Context, vector []float32, n int) ([]models.CourseMatch, error) {
	count := m.catalog.Count()
	if count == 0 || n <= 0 {
		return nil, nil
	}
	results, err := m.catalog.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       min(n, count),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	matches := make([]models.CourseMatch, 0, len(results))
	for _, r := range results {
		entry, err := catalogEntryFromMetadata(r.Metadata)
		if err != nil {
			return nil, err
		}
		matches = append(matches, models.CourseMatch{Entry: entry, Score: r.Similarity})
	}
	return matches, nil
}

func (m *VectorDBManager) SearchChunks(ctx context.Context, vector []float32, filter models.SearchFilter, k int) ([]models.SearchResult, error) {
	count := m.content.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	where := map[string]string{}
	if filter.CourseTitle != "" {
		where[metaCourseTitle] = filter.CourseTitle
	}
	if filter.LessonNumber != nil {
		where[metaLessonNumber] = strconv.Itoa(*filter.LessonNumber)
	}
	if len(where) == 0 {
		where = nil
	}

	results, err := m.content.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       min(k, count),
		Where:          where,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		lesson, _ := strconv.Atoi(r.Metadata[metaLessonNumber])
		idx, _ := strconv.Atoi(r.Metadata[metaChunkIndex])
		out = append(out, models.SearchResult{
			Chunk: models.Chunk{
				Text:         r.Content,
				CourseTitle:  r.Metadata[metaCourseTitle],
				LessonNumber: lesson,
				ChunkIndex:   idx,
			},
			Score: r.Similarity,
		})
	}
	return out, nil
}

func (m *VectorDBManager) GetCatalogEntry(ctx context.Context, title string) (models.CatalogEntry, error) {
	if !m.hasCourse(title) {
		return models.CatalogEntry{}, fmt.Errorf("%w: %q", models.ErrCourseNotFound, title)
	}
	doc, err := m.catalog.GetByID(ctx, title)
	if err != nil {
		return models.CatalogEntry{}, fmt.Errorf("failed to get catalog entry %s: %w", title, err)
	}
	return catalogEntryFromMetadata(doc.Metadata)
}

func (m *VectorDBManager) CourseTitles(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.manifest.Courses...), nil
}

func (m *VectorDBManager) ChunkCount(context.Context) (int, error) {
	return m.content.Count(), nil
}

// Close is a no-op; persistent collections are written on every change.
func (m *VectorDBManager) Close() error {
	return nil
}

func (m *VectorDBManager) hasCourse(title string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.manifest.Courses {
		if t == title {
			return true
		}
	}
	return false
}

func (m *VectorDBManager) readManifest() (manifest, error) {
	var mf manifest
	if m.inMemory {
		return mf, nil
	}
	data, err := os.ReadFile(filepath.Join(m.dbPath, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return mf, nil
	}
	if err != nil {
		return mf, fmt.Errorf("failed to read index manifest: %w", err)
	}
	if err := json.Unmarshal(data, &mf); err != nil {
		// treat a corrupt manifest as foreign settings
		log.Warn().Err(err).Msg("Ignoring unreadable index manifest")
		return manifest{}, nil
	}
	return mf, nil
}

// writeManifest must be called with mu held or before the manager is shared
func (m *VectorDBManager) writeManifest() error {
	if m.inMemory {
		return nil
	}
	data, err := json.MarshalIndent(m.manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(m.dbPath, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write index manifest: %w", err)
	}
	return nil
}

func catalogEntryFromMetadata(meta map[string]string) (models.CatalogEntry, error) {
	entry := models.CatalogEntry{
		Title:      meta[metaCourseTitle],
		Link:       meta[metaLink],
		Instructor: meta[metaInstructor],
	}
	if raw := meta[metaLessons]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &entry.Lessons); err != nil {
			return models.CatalogEntry{}, fmt.Errorf("failed to decode lessons of %s: %w", entry.Title, err)
		}
	}
	return entry, nil
}
