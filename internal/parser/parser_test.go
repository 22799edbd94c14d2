package parser

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scientific-rag/internal/config"
	"scientific-rag/internal/models"
)

func testParserConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		Paths: config.PathsConfig{
			ExtractedDir: filepath.Join(base, "extracted"),
			FiguresDir:   filepath.Join(base, "figures"),
		},
	}
}

func TestDocID(t *testing.T) {
	cases := map[string]string{
		"papers/attention.pdf": "attention",
		"report.v2.pdf":        "report.v2",
		"REPORT.PDF":           "REPORT",
		"noext":                "noext",
	}
	for path, want := range cases {
		assert.Equal(t, want, DocID(path))
	}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "one\ntwo\n", normalizeText("one\r\ntwo\r\n"))
	assert.Equal(t, "café", normalizeText("café"))
}

func TestParseTextFile(t *testing.T) {
	p, err := NewDocumentParser(testParserConfig(t))
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Line one.\r\nLine two.\r\n"), 0o644))

	docs, err := p.ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Line one.\nLine two.\n", docs[0].Text)
	assert.Equal(t, "notes.txt", docs[0].Source)
	assert.Equal(t, "notes", docs[0].DocID)
	assert.Equal(t, 1, docs[0].Page)
}

func TestParseBlankTextFile(t *testing.T) {
	p, err := NewDocumentParser(testParserConfig(t))
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "blank.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n\t\n"), 0o644))

	docs, err := p.ParseFile(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestParseDirectorySkipsFailures(t *testing.T) {
	cfg := testParserConfig(t)
	p, err := NewDocumentParser(cfg)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("First paper text."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte("Second paper text."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("unsupported"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.pdf"), []byte("this is not a pdf"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	docs, failures, err := p.ParseDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	require.Len(t, failures, 1)
	assert.Equal(t, "broken.pdf", failures[0].File)
	assert.NotEmpty(t, failures[0].Reason)

	// sidecars were written for the parsed documents
	assert.FileExists(t, filepath.Join(cfg.Paths.ExtractedDir, "a.json"))
	assert.FileExists(t, filepath.Join(cfg.Paths.ExtractedDir, "a.html"))
}

func TestParseDirectoryMissing(t *testing.T) {
	p, err := NewDocumentParser(testParserConfig(t))
	require.NoError(t, err)

	_, _, err = p.ParseDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestParseFileAttachesFigureMap(t *testing.T) {
	cfg := testParserConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Paths.FiguresDir, 0o755))
	figure := filepath.Join(cfg.Paths.FiguresDir, "mypaper_p1_i0.png")
	require.NoError(t, os.WriteFile(figure, []byte("png bytes"), 0o644))

	p, err := NewDocumentParser(cfg)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "mypaper.txt")
	require.NoError(t, os.WriteFile(path, []byte("The paper body."), 0o644))

	docs, err := p.ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, map[int][]string{1: {figure}}, docs[0].ImageMap)
}

func TestScanFigures(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"paper_p1_i0.png",
		"paper_p2_i1.png",
		"paper_p2_i0.jpg",
		"other_p1_i0.png",
		"paper_junk.png",
		"paper_p3_i0.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	imageMap := ScanFigures(dir, "paper")
	require.NotNil(t, imageMap)
	assert.Equal(t, []string{filepath.Join(dir, "paper_p1_i0.png")}, imageMap[1])
	assert.Equal(t, []string{
		filepath.Join(dir, "paper_p2_i0.jpg"),
		filepath.Join(dir, "paper_p2_i1.png"),
	}, imageMap[2])
	assert.NotContains(t, imageMap, 3)

	assert.Nil(t, ScanFigures(dir, "unknown"))
	assert.Nil(t, ScanFigures(filepath.Join(dir, "missing"), "paper"))
}

func TestSaveFigure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "figures")

	t.Run("saves under the naming convention", func(t *testing.T) {
		data := make([]byte, 2048)
		path, err := SaveFigure(dir, "doc", 3, 1, ".PNG", data, 1024)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "doc_p3_i1.png"), path)
		assert.FileExists(t, path)
	})

	t.Run("drops tiny images", func(t *testing.T) {
		path, err := SaveFigure(dir, "doc", 4, 0, "png", []byte("tiny"), 1024)
		require.NoError(t, err)
		assert.Empty(t, path)
		assert.NoFileExists(t, filepath.Join(dir, "doc_p4_i0.png"))
	})
}

func TestWriteSidecars(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("r", 1500)
	docs := []models.SourceDocument{
		{Text: "# Heading\nBody text here.", Source: "thesis.pdf", DocID: "thesis", Page: 1},
		{Text: long, Source: "thesis.pdf", DocID: "thesis", Page: 2},
	}

	require.NoError(t, WriteSidecars(dir, docs))

	raw, err := os.ReadFile(filepath.Join(dir, "thesis.json"))
	require.NoError(t, err)
	var pages []sidecarPage
	require.NoError(t, json.Unmarshal(raw, &pages))
	require.Len(t, pages, 2)
	assert.Equal(t, "thesis.pdf", pages[0].Source)
	assert.Equal(t, 1, pages[0].Page)
	assert.Equal(t, "# Heading\nBody text here.", pages[0].TextPreview)
	assert.Equal(t, 2, pages[1].Page)
	assert.Equal(t, strings.Repeat("r", 1000)+"...", pages[1].TextPreview)
	assert.Equal(t, "thesis", pages[0].Metadata["doc_id"])

	html, err := os.ReadFile(filepath.Join(dir, "thesis.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Body text here.")
}

func TestParsePPTX(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slides.pptx")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	write := func(name, body string) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	write("ppt/theme/theme1.xml", "<a:t>theme text must not leak</a:t>")
	write("ppt/slides/slide10.xml", "<p:sld><a:t>Last slide</a:t></p:sld>")
	write("ppt/slides/slide1.xml", "<p:sld><a:t>Model overview</a:t><a:t>and scope</a:t></p:sld>")
	write("ppt/slides/slide3.xml", "<p:sld><a:p></a:p></p:sld>")
	write("ppt/slides/slide2.xml", "<p:sld><a:t>Benchmark results</a:t></p:sld>")
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	docs, err := parsePPTX(path)
	require.NoError(t, err)
	require.Len(t, docs, 3, "empty slide should be dropped")

	assert.Equal(t, 1, docs[0].Page)
	assert.Equal(t, "Model overview and scope", strings.TrimSpace(docs[0].Text))
	assert.Equal(t, 2, docs[1].Page)
	assert.Equal(t, "Benchmark results", strings.TrimSpace(docs[1].Text))
	assert.Equal(t, 10, docs[2].Page, "slides should sort numerically, not by file name")
	assert.Equal(t, "slides.pptx", docs[0].Source)
	assert.Equal(t, "slides", docs[0].DocID)
	assert.NotContains(t, docs[0].Text+docs[1].Text+docs[2].Text, "theme text")
}
