package models

import (
	"encoding/json"
	"strconv"
)

// ContentType classifies what a chunk holds.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeTable    ContentType = "table"
	ContentTypeEquation ContentType = "equation"
	ContentTypeFigure   ContentType = "figure"
)

// Metadata keys shared between chunking, storage and retrieval.
const (
	MetaSource      = "source"
	MetaPage        = "page_num"
	MetaDocID       = "doc_id"
	MetaContentType = "content_type"
	MetaContext     = "context"
	MetaLatex       = "latex"
	MetaCaption     = "caption"
	MetaImageMap    = "image_map"
)

// SourceDocument is one page of extracted text from a source file.
type SourceDocument struct {
	Text     string
	Source   string
	DocID    string
	Page     int
	ImageMap map[int][]string
}

// BaseMetadata returns the metadata every chunk of this page inherits.
// The image map is serialized to JSON so it survives string-only stores.
func (d *SourceDocument) BaseMetadata() map[string]string {
	md := map[string]string{
		MetaSource: d.Source,
		MetaPage:   strconv.Itoa(d.Page),
		MetaDocID:  d.DocID,
	}
	if len(d.ImageMap) > 0 {
		if b, err := json.Marshal(d.ImageMap); err == nil {
			md[MetaImageMap] = string(b)
		}
	}
	return md
}

// Chunk represents an indexable unit of content with metadata.
type Chunk struct {
	Text     string
	Type     ContentType
	Metadata map[string]string
}
