package services

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"persona-advisor/internal/logger"
)

// Extractor turns uploaded file bytes into plain text for chunking.
// Supported formats: pdf, txt, md, html, xlsx.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// FileType normalizes a file name into the type label stored in vector
// metadata ("pdf", "txt", "md", "html", "xlsx").
func FileType(fileName string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	if ext == "htm" {
		return "html"
	}
	return ext
}

// ExtractText extracts text from the file. Files that yield no usable text
// return an error so the caller can record a per-file failure.
func (e *Extractor) ExtractText(fileName string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%s: file is empty", fileName)
	}

	var text string
	var err error
	switch FileType(fileName) {
	case "pdf":
		text, err = e.extractPDF(data)
	case "html":
		text, err = e.extractHTML(data)
	case "xlsx":
		text, err = e.extractXLSX(data)
	case "txt", "md", "markdown", "csv":
		text, err = e.extractPlain(data)
	default:
		return "", fmt.Errorf("%s: unsupported file type", fileName)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", fileName, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: no text content extracted", fileName)
	}
	return text, nil
}

func (e *Extractor) extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var b strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("pdf page extraction failed", "page", i, "error", err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func (e *Extractor) extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	var paragraphs []string
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, td, pre, blockquote").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func (e *Extractor) extractXLSX(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			logger.Warn("sheet read failed", "sheet", sheet, "error", err.Error())
			continue
		}
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " "))
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (e *Extractor) extractPlain(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid utf-8 text")
	}
	return string(data), nil
}
