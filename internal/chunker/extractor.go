package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"scientific-rag/internal/helper"
	"scientific-rag/internal/models"
)

const (
	tableContextChars    = 200
	equationContextChars = 150
	contextMetadataChars = 200
)

// span marks a half-open [start, end) byte range of matched content.
type span struct {
	start, end int
}

// ContentExtractor finds tables, equations and figure captions in page text
// and lifts each into its own chunk so structures are never split mid-way.
type ContentExtractor struct {
	equationRe        *regexp.Regexp
	displayEquationRe *regexp.Regexp
	figureRe          *regexp.Regexp
	dividerRe         *regexp.Regexp
}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{
		equationRe:        regexp.MustCompile(models.EquationRegex),
		displayEquationRe: regexp.MustCompile(models.DisplayEquationRegex),
		figureRe:          regexp.MustCompile(models.FigureCaptionRegex),
		dividerRe:         regexp.MustCompile(models.TableDividerRegex),
	}
}

// ExtractSpecialContent returns the special-content chunks of text: tables,
// then equations, then figure captions, each group in document order. Every
// chunk inherits a copy of base metadata plus its type-specific fields.
func (e *ContentExtractor) ExtractSpecialContent(text string, base map[string]string) []models.Chunk {
	var chunks []models.Chunk
	chunks = append(chunks, e.tableChunks(text, base)...)
	chunks = append(chunks, e.equationChunks(text, base)...)
	chunks = append(chunks, e.figureChunks(text, base)...)
	return chunks
}

// RemoveSpecialContent replaces every matched structure with a placeholder so
// the surrounding prose keeps its shape for windowing. Inline single-dollar
// equations are too fine-grained to lift out and stay in the text.
func (e *ContentExtractor) RemoveSpecialContent(text string) string {
	out := replaceSpans(text, e.tableSpans(text), models.TableRemovedPlaceholder)
	out = e.displayEquationRe.ReplaceAllString(out, models.EquationRemovedPlaceholder)
	out = e.figureRe.ReplaceAllString(out, models.FigureRemovedPlaceholder)
	return out
}

func (e *ContentExtractor) tableChunks(text string, base map[string]string) []models.Chunk {
	var chunks []models.Chunk
	for _, sp := range e.tableSpans(text) {
		context := tableContext(text, sp.start)
		block := strings.TrimSpace(text[sp.start:sp.end])
		md := cloneMetadata(base)
		md[models.MetaContentType] = string(models.ContentTypeTable)
		md[models.MetaContext] = helper.Truncate(context, contextMetadataChars)
		chunks = append(chunks, models.Chunk{
			Text:     "TABLE:\n" + context + "\n\n" + block,
			Type:     models.ContentTypeTable,
			Metadata: md,
		})
	}
	return chunks
}

func (e *ContentExtractor) equationChunks(text string, base map[string]string) []models.Chunk {
	var chunks []models.Chunk
	for _, m := range e.equationRe.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		before := text[backOffset(text, start, equationContextChars):start]
		after := text[end:forwardOffset(text, end, equationContextChars)]
		md := cloneMetadata(base)
		md[models.MetaContentType] = string(models.ContentTypeEquation)
		md[models.MetaLatex] = text[start:end]
		chunks = append(chunks, models.Chunk{
			Text:     "EQUATION:\n" + strings.TrimSpace(before) + "\n" + text[start:end] + "\n" + strings.TrimSpace(after),
			Type:     models.ContentTypeEquation,
			Metadata: md,
		})
	}
	return chunks
}

func (e *ContentExtractor) figureChunks(text string, base map[string]string) []models.Chunk {
	var chunks []models.Chunk
	for _, m := range e.figureRe.FindAllStringIndex(text, -1) {
		caption := strings.TrimSpace(text[m[0]:m[1]])
		md := cloneMetadata(base)
		md[models.MetaContentType] = string(models.ContentTypeFigure)
		md[models.MetaCaption] = caption
		chunks = append(chunks, models.Chunk{
			Text:     "FIGURE: " + caption,
			Type:     models.ContentTypeFigure,
			Metadata: md,
		})
	}
	return chunks
}

type textLine struct {
	start, end int // end excludes the newline
	text       string
}

func splitLines(text string) []textLine {
	var lines []textLine
	start := 0
	for start <= len(text) {
		idx := strings.IndexByte(text[start:], '\n')
		if idx < 0 {
			lines = append(lines, textLine{start, len(text), text[start:]})
			break
		}
		lines = append(lines, textLine{start, start + idx, text[start : start+idx]})
		start += idx + 1
	}
	return lines
}

// tableSpans locates table blocks: a pipe-delimited header row, a divider row
// beneath it, and the contiguous pipe-delimited rows that follow. Rows do not
// need outer pipes, one interior pipe is enough.
func (e *ContentExtractor) tableSpans(text string) []span {
	lines := splitLines(text)
	var spans []span
	i := 0
	for i < len(lines) {
		if !e.isDividerRow(lines[i].text) || i == 0 {
			i++
			continue
		}
		header := lines[i-1].text
		if !isPipeRow(header) || e.isDividerRow(header) {
			i++
			continue
		}
		j := i + 1
		for j < len(lines) && isPipeRow(lines[j].text) {
			j++
		}
		if j == i+1 { // divider without body rows
			i++
			continue
		}
		spans = append(spans, span{lines[i-1].start, lines[j-1].end})
		i = j
	}
	return spans
}

func (e *ContentExtractor) isDividerRow(line string) bool {
	return strings.Contains(line, "|") && e.dividerRe.MatchString(line)
}

func isPipeRow(line string) bool {
	return strings.Contains(line, "|") && strings.TrimSpace(line) != ""
}

// tableContext returns the prose leading up to a table: everything from the
// last line break before (start - tableContextChars) up to the table itself.
func tableContext(text string, start int) string {
	from := start - tableContextChars
	if from < 0 {
		from = 0
	}
	if idx := strings.LastIndex(text[:from], "\n"); idx >= 0 {
		from = idx
	} else {
		from = 0
	}
	return strings.TrimSpace(text[from:start])
}

func replaceSpans(text string, spans []span, placeholder string) string {
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, sp := range spans {
		b.WriteString(text[last:sp.start])
		b.WriteString(placeholder)
		last = sp.end
	}
	b.WriteString(text[last:])
	return b.String()
}

// backOffset walks n bytes back from i, then forward to a rune boundary.
func backOffset(s string, i, n int) int {
	i -= n
	if i < 0 {
		return 0
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// forwardOffset walks n bytes forward from i, then back to a rune boundary.
func forwardOffset(s string, i, n int) int {
	i += n
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func cloneMetadata(base map[string]string) map[string]string {
	md := make(map[string]string, len(base)+2)
	for k, v := range base {
		md[k] = v
	}
	return md
}
