package parser

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"course-rag/internal/models"
)

var (
	supportedExtensions = map[string]bool{".txt": true, ".pdf": true, ".docx": true}
	xmlTagRe            = regexp.MustCompile(`<[^>]+>`)
)

// Supported reports whether the file extension can be ingested.
func Supported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// ParseFile extracts the text of a course document and parses it.
func ParseFile(path string) (models.Course, error) {
	text, err := ExtractText(path)
	if err != nil {
		return models.Course{}, err
	}
	return ParseCourse(path, text)
}

// ExtractText returns the plain text of a .txt, .pdf or .docx file.
func ExtractText(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var (
		text string
		err  error
	)
	switch ext {
	case ".txt":
		text, err = parseText(path)
	case ".pdf":
		text, err = parsePDF(path)
	case ".docx":
		text, err = parseDOCX(path)
	default:
		return "", &models.IngestionError{Path: path, Reason: fmt.Sprintf("unsupported file format: %s", ext)}
	}
	if err != nil {
		return "", &models.IngestionError{Path: path, Reason: "failed to read document", Err: err}
	}
	return text, nil
}

func parseText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	// drop a UTF-8 BOM so the first header line matches
	return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), nil
}

func parsePDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var text strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		text.WriteString(pageText)
		text.WriteString("\n")
	}
	return text.String(), nil
}

func parseDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	return extractTextFromXML(r.Editable().GetContent()), nil
}

// extractTextFromXML turns document XML into text with one line per paragraph
func extractTextFromXML(xmlContent string) string {
	xmlContent = strings.ReplaceAll(xmlContent, "</w:p>", "\n")
	xmlContent = strings.ReplaceAll(xmlContent, "<w:br/>", "\n")
	xmlContent = strings.ReplaceAll(xmlContent, "<w:tab/>", "\t")
	return html.UnescapeString(xmlTagRe.ReplaceAllString(xmlContent, ""))
}
