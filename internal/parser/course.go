package parser

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"course-rag/internal/models"
)

var (
	titleRe      = regexp.MustCompile(models.CourseTitleRegex)
	linkRe       = regexp.MustCompile(models.CourseLinkRegex)
	instructorRe = regexp.MustCompile(models.CourseInstructorRegex)
	lessonRe     = regexp.MustCompile(models.LessonRegex)
	lessonLinkRe = regexp.MustCompile(models.LessonLinkRegex)
)

type courseParserState struct {
	path    string
	course  models.Course
	header  int // header lines consumed
	lesson  *models.Lesson
	content []string
	// set right after a lesson marker, cleared by the first content line
	expectLink bool
	seen       map[int]bool
}

// ParseCourse parses a course transcript: three header lines followed by one
// or more "Lesson N: title" blocks.
func ParseCourse(path, text string) (models.Course, error) {
	state := courseParserState{path: path, seen: map[int]bool{}}

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if err := processCourseLine(line, &state); err != nil {
			return models.Course{}, err
		}
	}
	if err := scanner.Err(); err != nil {
		return models.Course{}, &models.IngestionError{Path: path, Reason: "failed to scan document", Err: err}
	}
	if state.header < 3 {
		return models.Course{}, &models.IngestionError{Path: path, Reason: "missing course header"}
	}
	flushLesson(&state)
	if len(state.course.Lessons) == 0 {
		return models.Course{}, &models.IngestionError{Path: path, Reason: "course has no lessons"}
	}

	log.Debug().Str("course", state.course.Title).Int("lessons", len(state.course.Lessons)).Msg("Parsed course")
	return state.course, nil
}

// processCourseLine handles a single line, updating the parser state
func processCourseLine(line string, state *courseParserState) error {
	trimmed := strings.TrimSpace(line)

	if state.header < 3 {
		if trimmed == "" {
			return nil
		}
		return processHeaderLine(trimmed, state)
	}

	if m := lessonRe.FindStringSubmatch(trimmed); m != nil {
		flushLesson(state)
		number, err := strconv.Atoi(m[1])
		if err != nil {
			return &models.IngestionError{Path: state.path, Reason: "invalid lesson number " + m[1], Err: err}
		}
		if state.seen[number] {
			return &models.IngestionError{Path: state.path, Reason: "duplicate lesson " + m[1]}
		}
		state.seen[number] = true
		state.lesson = &models.Lesson{Number: number, Title: strings.TrimSpace(m[2])}
		state.expectLink = true
		return nil
	}
	if state.lesson == nil {
		if trimmed == "" {
			return nil
		}
		return &models.IngestionError{Path: state.path, Reason: "content before first lesson marker"}
	}
	if state.expectLink {
		if trimmed == "" {
			return nil
		}
		state.expectLink = false
		if m := lessonLinkRe.FindStringSubmatch(trimmed); m != nil {
			state.lesson.Link = strings.TrimSpace(m[1])
			return nil
		}
	}
	state.content = append(state.content, line)
	return nil
}

func processHeaderLine(line string, state *courseParserState) error {
	var re *regexp.Regexp
	var name string
	switch state.header {
	case 0:
		re, name = titleRe, "Course Title"
	case 1:
		re, name = linkRe, "Course Link"
	default:
		re, name = instructorRe, "Course Instructor"
	}
	m := re.FindStringSubmatch(line)
	if m == nil {
		return &models.IngestionError{Path: state.path, Reason: "expected " + name + " header, got: " + line}
	}
	value := strings.TrimSpace(m[1])
	switch state.header {
	case 0:
		if value == "" {
			return &models.IngestionError{Path: state.path, Reason: "empty course title"}
		}
		state.course.Title = value
	case 1:
		state.course.Link = value
	default:
		state.course.Instructor = value
	}
	state.header++
	return nil
}

// flushLesson stores the lesson being accumulated, if any
func flushLesson(state *courseParserState) {
	if state.lesson == nil {
		return
	}
	state.lesson.Content = strings.TrimSpace(strings.Join(state.content, "\n"))
	state.course.Lessons = append(state.course.Lessons, *state.lesson)
	state.lesson = nil
	state.content = nil
	state.expectLink = false
}
