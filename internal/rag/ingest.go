package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"course-rag/internal/models"
	"course-rag/internal/parser"
)

// IngestReport summarizes one folder ingestion.
type IngestReport struct {
	Courses  []string                `json:"courses"`
	Chunks   int                     `json:"chunks"`
	Failures []models.IngestionError `json:"failures"`
}

// ParsedCourse is a course document that parsed cleanly.
type ParsedCourse struct {
	Path   string
	Course models.Course
}

// ParseFolder parses every supported file in dir with at most workers files
// in flight. Files that fail to parse are reported, not returned as errors.
func ParseFolder(ctx context.Context, dir string, workers int) ([]ParsedCourse, []models.IngestionError, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read folder %s: %w", models.ErrIngestion, dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !parser.Supported(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	courses := make([]models.Course, len(paths))
	errs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			courses[i], errs[i] = parser.ParseFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var parsed []ParsedCourse
	var failures []models.IngestionError
	for i, path := range paths {
		if errs[i] != nil {
			failures = append(failures, asIngestionError(path, errs[i]))
			continue
		}
		parsed = append(parsed, ParsedCourse{Path: path, Course: courses[i]})
	}
	return parsed, failures, nil
}

func asIngestionError(path string, err error) models.IngestionError {
	var ie *models.IngestionError
	if errors.As(err, &ie) {
		return *ie
	}
	return models.IngestionError{Path: path, Reason: "failed to parse document", Err: err}
}

// IngestFolder parses and indexes every course document in dir. A course
// whose title appears in several files is indexed from the last one.
func (s *System) IngestFolder(ctx context.Context, dir string) (IngestReport, error) {
	parsed, failures, err := ParseFolder(ctx, dir, s.cfg.RAG.IngestWorkers)
	if err != nil {
		return IngestReport{}, err
	}
	for _, f := range failures {
		log.Warn().Str("file", f.Path).Str("reason", f.Reason).Err(f.Err).Msg("Skipping course document")
	}

	report := IngestReport{Courses: []string{}, Failures: failures}
	chunks := map[string]int{}
	for _, p := range parsed {
		n, err := s.index.UpsertCourse(ctx, p.Course)
		if err != nil {
			return report, fmt.Errorf("failed to index %s: %w", p.Path, err)
		}
		if prev, ok := chunks[p.Course.Title]; ok {
			log.Warn().Str("course", p.Course.Title).Str("file", p.Path).Msg("Course title seen twice, keeping the later file")
			report.Chunks -= prev
		} else {
			report.Courses = append(report.Courses, p.Course.Title)
		}
		chunks[p.Course.Title] = n
		report.Chunks += n
	}

	log.Info().Int("courses", len(report.Courses)).Int("chunks", report.Chunks).Int("failures", len(failures)).Str("folder", dir).Msg("Ingested course folder")
	return report, nil
}

// IngestFile parses and indexes one course document, returning its chunk
// count.
func (s *System) IngestFile(ctx context.Context, path string) (int, error) {
	course, err := parser.ParseFile(path)
	if err != nil {
		return 0, err
	}
	n, err := s.index.UpsertCourse(ctx, course)
	if err != nil {
		return 0, err
	}
	log.Info().Str("course", course.Title).Int("chunks", n).Str("file", path).Msg("Ingested course document")
	return n, nil
}
