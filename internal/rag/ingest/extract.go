package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dslipak/pdf"
	"github.com/lu4p/cat"
)

type docKind int

const (
	kindUnsupported docKind = iota
	kindPlain
	kindPDF
	kindRich
)

func kindFor(path string) docKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return kindPlain
	case ".pdf":
		return kindPDF
	case ".docx", ".rtf", ".odt":
		return kindRich
	default:
		return kindUnsupported
	}
}

func extractText(path string, kind docKind) (string, error) {
	switch kind {
	case kindPlain:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading file: %w", err)
		}
		return string(data), nil
	case kindPDF:
		return extractPDF(path)
	case kindRich:
		text, err := cat.File(path)
		if err != nil {
			return "", fmt.Errorf("failed to extract document: %w", err)
		}
		return text, nil
	default:
		return "", fmt.Errorf("unsupported document type: %s", filepath.Ext(path))
	}
}

func extractPDF(path string) (string, error) {
	f, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	numPages := f.NumPage()
	for i := 1; i <= numPages; i++ {
		page := f.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := protectExtract(page)
		if err != nil {
			// a bad page should not sink the whole document
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// protectExtract guards against the pdf library hanging on malformed
// content streams.
func protectExtract(page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()
	select {
	case r := <-resChan:
		return r.content, r.err
	case <-time.After(time.Second * 10):
		return "", errors.New("timeout extracting page")
	}
}
