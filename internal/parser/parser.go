package parser

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"scientific-rag/internal/config"
	"scientific-rag/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"
)

// Failure records one file that could not be extracted.
type Failure struct {
	File   string
	Reason string
}

var supportedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".pptx": true,
	".xlsx": true,
	".ods":  true,
	".txt":  true,
}

// DocumentParser extracts source files into per-page documents. When a remote
// parse service is configured it is tried first for PDFs, with the local
// parsers as fallback.
type DocumentParser struct {
	cfg    *config.Config
	remote *ServiceClient
}

func NewDocumentParser(cfg *config.Config) (*DocumentParser, error) {
	p := &DocumentParser{cfg: cfg}
	if cfg.Parser.ServiceURL != "" {
		remote, err := NewServiceClient(&cfg.Parser, cfg.Paths.FiguresDir)
		if err != nil {
			return nil, err
		}
		p.remote = remote
	}
	return p, nil
}

// ParseDirectory extracts every supported file under dir. A file that fails
// to extract is logged and skipped, it never aborts the batch.
func (p *DocumentParser) ParseDirectory(ctx context.Context, dir string) ([]models.SourceDocument, []Failure, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read data dir %s: %v", dir, err)
	}

	var docs []models.SourceDocument
	var failures []Failure
	for _, entry := range entries {
		if entry.IsDir() || !supportedExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		fileDocs, err := p.ParseFile(ctx, path)
		if err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping file after extraction failure")
			failures = append(failures, Failure{File: entry.Name(), Reason: err.Error()})
			continue
		}
		docs = append(docs, fileDocs...)
	}
	return docs, failures, nil
}

// ParseFile extracts one file into per-page documents, attaches the figure
// map and writes the debug sidecars.
func (p *DocumentParser) ParseFile(ctx context.Context, path string) ([]models.SourceDocument, error) {
	var docs []models.SourceDocument
	var err error
	if p.remote != nil && strings.EqualFold(filepath.Ext(path), ".pdf") {
		docs, err = p.remote.Parse(ctx, path)
		if err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("Remote parse failed, falling back to local parser")
			docs, err = p.parseLocal(path)
		}
	} else {
		docs, err = p.parseLocal(path)
	}
	if err != nil {
		return nil, err
	}

	imageMap := ScanFigures(p.cfg.Paths.FiguresDir, DocID(path))
	for i := range docs {
		docs[i].ImageMap = imageMap
	}
	if len(docs) > 0 {
		if err := WriteSidecars(p.cfg.Paths.ExtractedDir, docs); err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("Failed writing debug sidecars")
		}
	}
	return docs, nil
}

func (p *DocumentParser) parseLocal(path string) ([]models.SourceDocument, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return parsePDF(path)
	case ".docx":
		return parseDOCX(path)
	case ".pptx":
		return parsePPTX(path)
	case ".xlsx":
		return parseXLSX(path)
	case ".ods":
		return parseODS(path)
	case ".txt":
		return parseText(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func parsePDF(path string) ([]models.SourceDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	source := filepath.Base(path)
	docID := DocID(path)
	var docs []models.SourceDocument
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			log.Debug().Err(err).Str("file", source).Int("page", i).Msg("Skipping unreadable page")
			continue
		}
		pageText = normalizeText(pageText)
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		docs = append(docs, models.SourceDocument{
			Text:   pageText,
			Source: source,
			DocID:  docID,
			Page:   i,
		})
	}
	return docs, nil
}

func parseDOCX(path string) ([]models.SourceDocument, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := normalizeText(r.Editable().GetContent())
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	return []models.SourceDocument{{
		Text:   content,
		Source: filepath.Base(path),
		DocID:  DocID(path),
		Page:   1, // DOCX has no page numbers
	}}, nil
}

var slideFileRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func parsePPTX(path string) ([]models.SourceDocument, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	source := filepath.Base(path)
	docID := DocID(path)
	var docs []models.SourceDocument
	for _, file := range r.File {
		m := slideFileRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		slide, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		content := normalizeText(drawingMLText(string(data)))
		if strings.TrimSpace(content) == "" {
			continue
		}
		docs = append(docs, models.SourceDocument{
			Text:   content,
			Source: source,
			DocID:  docID,
			Page:   slide, // slides stand in for pages
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Page < docs[j].Page })
	return docs, nil
}

// drawingMLText pulls the text runs out of slide XML without a full parse,
// every run lives in an <a:t> element.
func drawingMLText(xmlContent string) string {
	var text strings.Builder
	for i, part := range strings.Split(xmlContent, "<a:t>") {
		if i == 0 {
			continue
		}
		if end := strings.Index(part, "</a:t>"); end >= 0 {
			text.WriteString(part[:end] + " ")
		}
	}
	return text.String()
}

func parseXLSX(path string) ([]models.SourceDocument, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, err
	}

	source := filepath.Base(path)
	docID := DocID(path)
	var docs []models.SourceDocument
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		content := normalizeText(text.String())
		if strings.TrimSpace(content) == "" {
			continue
		}
		docs = append(docs, models.SourceDocument{
			Text:   content,
			Source: source,
			DocID:  docID,
			Page:   sheetNum + 1, // sheets stand in for pages
		})
	}
	return docs, nil
}

func parseODS(path string) ([]models.SourceDocument, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	source := filepath.Base(path)
	docID := DocID(path)
	var docs []models.SourceDocument
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		content := normalizeText(text.String())
		if strings.TrimSpace(content) == "" {
			continue
		}
		docs = append(docs, models.SourceDocument{
			Text:   content,
			Source: source,
			DocID:  docID,
			Page:   sheetNum + 1,
		})
	}
	return docs, nil
}

func parseText(path string) ([]models.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := normalizeText(string(data))
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	return []models.SourceDocument{{
		Text:   content,
		Source: filepath.Base(path),
		DocID:  DocID(path),
		Page:   1,
	}}, nil
}

// DocID derives the document id from the file name, extension stripped.
func DocID(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// normalizeText unifies line endings and applies NFC so pattern matching sees
// one canonical form.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return norm.NFC.String(s)
}
