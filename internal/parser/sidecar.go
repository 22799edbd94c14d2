package parser

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"scientific-rag/internal/helper"
	"scientific-rag/internal/models"
)

const previewChars = 1000

type sidecarPage struct {
	Source      string            `json:"source"`
	Page        int               `json:"page"`
	TextPreview string            `json:"text_preview"`
	Metadata    map[string]string `json:"metadata"`
}

// WriteSidecars dumps a JSON debug record and an HTML preview for one parsed
// document into extractedDir, named after the document id.
func WriteSidecars(extractedDir string, docs []models.SourceDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if err := helper.CreateFolder(extractedDir); err != nil {
		return err
	}

	docID := docs[0].DocID
	pages := make([]sidecarPage, 0, len(docs))
	var full strings.Builder
	for i := range docs {
		pages = append(pages, sidecarPage{
			Source:      docs[i].Source,
			Page:        docs[i].Page,
			TextPreview: helper.Truncate(docs[i].Text, previewChars),
			Metadata:    docs[i].BaseMetadata(),
		})
		full.WriteString(docs[i].Text)
		full.WriteString("\n\n")
	}

	b, err := json.MarshalIndent(pages, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(extractedDir, docID+".json"), b, 0o644); err != nil {
		return err
	}

	preview, err := renderHTMLPreview(full.String())
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(extractedDir, docID+".html"), preview, 0o644)
}

// renderHTMLPreview renders extracted text as GFM so tables show up as tables
// when eyeballing extraction quality in a browser.
func renderHTMLPreview(text string) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
