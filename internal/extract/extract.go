// Package extract turns uploaded bytes into plain text for ingestion.
//
// Plain text and DOCX are handled here. PDF and image uploads need an
// external OCR/PDF toolchain and report ErrUnsupportedKind, which the
// pipeline treats as "no text extracted".
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"rentbot/internal/domain"
)

// ErrUnsupportedKind indicates no extractor is available for a content kind.
var ErrUnsupportedKind = errors.New("unsupported content kind")

var _ domain.Extractor = (*Extractor)(nil)

// Extractor extracts plain text from plain and DOCX uploads.
type Extractor struct{}

// New creates a new extractor.
func New() *Extractor { return &Extractor{} }

// Extract returns the text content of raw according to kind.
func (e *Extractor) Extract(_ context.Context, raw []byte, kind domain.ContentKind) (string, error) {
	switch kind {
	case domain.KindPlain, "":
		return strings.ToValidUTF8(string(raw), ""), nil
	case domain.KindDOCX:
		return extractDOCX(raw)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}

// KindFromFilename maps a file extension to its content kind. Unknown
// extensions are treated as plain text.
func KindFromFilename(name string) domain.ContentKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return domain.KindPDF
	case ".docx", ".doc":
		return domain.KindDOCX
	case ".png", ".jpg", ".jpeg", ".tiff", ".bmp":
		return domain.KindImage
	default:
		return domain.KindPlain
	}
}

func extractDOCX(raw []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("opening docx: %w", domain.ErrInvalidInput)
	}
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("opening document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("reading document.xml: %w", err)
		}
		return parseDocumentXML(content)
	}
	return "", nil
}

// documentXML represents the structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("parsing document.xml: %w", err)
	}
	var out strings.Builder
	for _, para := range doc.Body.Paragraphs {
		var line strings.Builder
		for _, run := range para.Runs {
			for _, text := range run.Text {
				line.WriteString(text.Content)
			}
		}
		if strings.TrimSpace(line.String()) == "" {
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString(line.String())
	}
	return out.String(), nil
}
