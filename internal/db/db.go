package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"course-rag/internal/config"
	"course-rag/internal/models"
)

const fingerprintKey = "fingerprint"

type CatalogRow struct {
	bun.BaseModel `bun:"table:course_catalog,alias:cc"`
	Title         string             `bun:"title,pk"`
	Link          string             `bun:"link"`
	Instructor    string             `bun:"instructor"`
	Lessons       []models.LessonRef `bun:"lessons,type:jsonb"`
	Embedding     pgvector.Vector    `bun:"embedding,notnull,type:vector"`
	Score         float32            `bun:"score,scanonly"`
}

type ChunkRow struct {
	bun.BaseModel `bun:"table:course_content,alias:ct"`
	ID            string          `bun:"id,pk"`
	CourseTitle   string          `bun:"course_title,notnull"`
	LessonNumber  int             `bun:"lesson_number,notnull"`
	ChunkIndex    int             `bun:"chunk_index,notnull"`
	Content       string          `bun:"content,notnull"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Score         float32         `bun:"score,scanonly"`
}

type MetaRow struct {
	bun.BaseModel `bun:"table:index_meta,alias:im"`
	Key           string `bun:"key,pk"`
	Value         string `bun:"value,notnull"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) *sql.DB {
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...))
}

// Store keeps the catalog and content collections in Postgres with pgvector.
type Store struct {
	db    *bun.DB
	reset bool
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Open connects, creates the schema and drops stored rows built with a
// different fingerprint.
func Open(ctx context.Context, cfg *config.DatabaseConfig, fingerprint string) (*Store, error) {
	s := NewStore(NewDB(ConnectDB(cfg), cfg.Debug))
	if err := s.InitDB(ctx, fingerprint); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) InitDB(ctx context.Context, fingerprint string) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	for _, model := range []any{(*CatalogRow)(nil), (*ChunkRow)(nil), (*MetaRow)(nil)} {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	if _, err := s.db.NewCreateIndex().Model((*ChunkRow)(nil)).Index("course_content_course_idx").
		Column("course_title", "lesson_number").IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	var meta MetaRow
	err := s.db.NewSelect().Model(&meta).Where("key = ?", fingerprintKey).Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read fingerprint: %w", err)
	case meta.Value != fingerprint:
		log.Warn().Str("stored", meta.Value).Str("current", fingerprint).Msg("Index settings changed, dropping stored rows")
		if err := s.Truncate(ctx); err != nil {
			return err
		}
		s.reset = true
	}

	meta = MetaRow{Key: fingerprintKey, Value: fingerprint}
	_, err = s.db.NewInsert().Model(&meta).On("CONFLICT (key) DO UPDATE").Set("value = EXCLUDED.value").Exec(ctx)
	return err
}

// WasReset reports whether InitDB dropped rows built with other settings.
func (s *Store) WasReset() bool {
	return s.reset
}

// Truncate removes every stored course and chunk
func (s *Store) Truncate(ctx context.Context) error {
	for _, model := range []any{(*ChunkRow)(nil), (*CatalogRow)(nil)} {
		if _, err := s.db.NewTruncateTable().Model(model).Exec(ctx); err != nil {
			return fmt.Errorf("failed to truncate: %w", err)
		}
	}
	return nil
}

func (s *Store) UpsertCatalog(ctx context.Context, entry models.CatalogEntry, vector []float32) error {
	_, err := s.upsertCatalogQuery(entry, vector).Exec(ctx)
	return err
}

func (s *Store) upsertCatalogQuery(entry models.CatalogEntry, vector []float32) *bun.InsertQuery {
	row := &CatalogRow{
		Title:      entry.Title,
		Link:       entry.Link,
		Instructor: entry.Instructor,
		Lessons:    entry.Lessons,
		Embedding:  pgvector.NewVector(vector),
	}
	return s.db.NewInsert().Model(row).
		On("CONFLICT (title) DO UPDATE").
		Set("link = EXCLUDED.link").
		Set("instructor = EXCLUDED.instructor").
		Set("lessons = EXCLUDED.lessons").
		Set("embedding = EXCLUDED.embedding")
}

func (s *Store) ReplaceChunks(ctx context.Context, courseTitle string, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*ChunkRow)(nil)).Where("course_title = ?", courseTitle).Exec(ctx); err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		rows := make([]ChunkRow, len(chunks))
		for i, c := range chunks {
			rows[i] = ChunkRow{
				ID:           fmt.Sprintf("%s_%d", c.CourseTitle, c.ChunkIndex),
				CourseTitle:  c.CourseTitle,
				LessonNumber: c.LessonNumber,
				ChunkIndex:   c.ChunkIndex,
				Content:      c.Text,
				Embedding:    pgvector.NewVector(vectors[i]),
			}
		}
		_, err := tx.NewInsert().Model(&rows).Exec(ctx)
		return err
	})
}

func (s *Store) NearestCourses(ctx context.Context, vector []float32, n int) ([]models.CourseMatch, error) {
	if n <= 0 {
		return nil, nil
	}
	var rows []CatalogRow
	if err := s.nearestCoursesQuery(&rows, vector, n).Scan(ctx); err != nil {
		return nil, err
	}
	matches := make([]models.CourseMatch, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, models.CourseMatch{Entry: r.entry(), Score: r.Score})
	}
	return matches, nil
}

func (s *Store) nearestCoursesQuery(rows *[]CatalogRow, vector []float32, n int) *bun.SelectQuery {
	vec := pgvector.NewVector(vector)
	return s.db.NewSelect().Model(rows).
		Column("title", "link", "instructor", "lessons").
		ColumnExpr("1 - (embedding <=> ?) AS score", vec).
		OrderExpr("embedding <=> ?", vec).
		Limit(n)
}

func (s *Store) SearchChunks(ctx context.Context, vector []float32, filter models.SearchFilter, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	var rows []ChunkRow
	if err := s.searchChunksQuery(&rows, vector, filter, k).Scan(ctx); err != nil {
		return nil, err
	}
	results := make([]models.SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, models.SearchResult{
			Chunk: models.Chunk{
				Text:         r.Content,
				CourseTitle:  r.CourseTitle,
				LessonNumber: r.LessonNumber,
				ChunkIndex:   r.ChunkIndex,
			},
			Score: r.Score,
		})
	}
	return results, nil
}

func (s *Store) searchChunksQuery(rows *[]ChunkRow, vector []float32, filter models.SearchFilter, k int) *bun.SelectQuery {
	vec := pgvector.NewVector(vector)
	q := s.db.NewSelect().Model(rows).
		Column("id", "course_title", "lesson_number", "chunk_index", "content").
		ColumnExpr("1 - (embedding <=> ?) AS score", vec)
	if filter.CourseTitle != "" {
		q = q.Where("course_title = ?", filter.CourseTitle)
	}
	if filter.LessonNumber != nil {
		q = q.Where("lesson_number = ?", *filter.LessonNumber)
	}
	return q.OrderExpr("embedding <=> ?", vec).Limit(k)
}

func (s *Store) GetCatalogEntry(ctx context.Context, title string) (models.CatalogEntry, error) {
	var row CatalogRow
	err := s.db.NewSelect().Model(&row).
		Column("title", "link", "instructor", "lessons").
		Where("title = ?", title).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CatalogEntry{}, fmt.Errorf("%w: %q", models.ErrCourseNotFound, title)
	}
	if err != nil {
		return models.CatalogEntry{}, err
	}
	return row.entry(), nil
}

func (s *Store) CourseTitles(ctx context.Context) ([]string, error) {
	var titles []string
	err := s.db.NewSelect().Model((*CatalogRow)(nil)).Column("title").Order("title ASC").Scan(ctx, &titles)
	return titles, err
}

func (s *Store) ChunkCount(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*ChunkRow)(nil)).Count(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (r CatalogRow) entry() models.CatalogEntry {
	return models.CatalogEntry{
		Title:      r.Title,
		Link:       r.Link,
		Instructor: r.Instructor,
		Lessons:    r.Lessons,
	}
}
