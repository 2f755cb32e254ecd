package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"doc-chat-be/pkg/ocr"

	"github.com/ledongthuc/pdf"
)

func parseText(_ context.Context, content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("text file is not valid UTF-8")
	}
	return string(content), nil
}

var (
	mdCodeFence  = regexp.MustCompile("(?s)```.*?```")
	mdImage      = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdBlockquote = regexp.MustCompile(`(?m)^>\s*`)
	mdRule       = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	mdList       = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+\.)\s+`)
	mdEmphasis   = regexp.MustCompile(`(\*\*|__|\*|` + "`" + `)`)
	mdBlankLines = regexp.MustCompile(`\n{3,}`)
)

// parseMarkdown keeps the prose and drops markup. Code inside fences is kept without the fences.
func parseMarkdown(ctx context.Context, content []byte) (string, error) {
	text, err := parseText(ctx, content)
	if err != nil {
		return "", err
	}
	text = mdCodeFence.ReplaceAllStringFunc(text, func(block string) string {
		lines := strings.Split(strings.Trim(block, "`"), "\n")
		if len(lines) > 1 {
			lines = lines[1:] // language tag
		}
		return strings.Join(lines, "\n")
	})
	text = mdImage.ReplaceAllString(text, "")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdHeading.ReplaceAllString(text, "")
	text = mdBlockquote.ReplaceAllString(text, "")
	text = mdRule.ReplaceAllString(text, "")
	text = mdList.ReplaceAllString(text, "")
	text = mdEmphasis.ReplaceAllString(text, "")
	text = mdBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}

type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

// parseDocx reads word/document.xml from the OOXML zip container.
func parseDocx(_ context.Context, content []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}

		var doc docxDocument
		if err := xml.Unmarshal(raw, &doc); err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}

		var sb strings.Builder
		for i, para := range doc.Body.Paragraphs {
			if i > 0 {
				sb.WriteString("\n")
			}
			for _, run := range para.Runs {
				for _, t := range run.Text {
					sb.WriteString(t.Content)
				}
			}
		}
		return strings.TrimSpace(sb.String()), nil
	}
	return "", fmt.Errorf("docx has no word/document.xml")
}

func parsePDF(_ context.Context, content []byte) (string, error) {
	pdfReader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("error creating PDF reader: %w", err)
	}

	b, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("could not read content of pdf: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(b); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// ImageParser runs OCR on the image and returns the recognised text as one string.
func ImageParser(extractor ocr.Extractor) Parser {
	return ParserFunc(func(ctx context.Context, content []byte) (string, error) {
		text, err := extractor.ExtractText(ctx, content)
		if err != nil {
			return "", fmt.Errorf("ocr: %w", err)
		}
		return text, nil
	})
}

// WithOCR registers ImageParser for the common image extensions.
func WithOCR(extractor ocr.Extractor) Option {
	return func(i *Ingestor) {
		p := ImageParser(extractor)
		for _, ext := range []string{".jpg", ".jpeg", ".png"} {
			i.parsers[ext] = p
		}
	}
}
