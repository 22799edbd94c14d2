package models

import (
	"encoding/json"
	"strconv"
)

// EmbeddedChunk is a chunk paired with its embedding vector.
type EmbeddedChunk struct {
	Chunk
	Embedding []float32
}

// SearchHit is one similarity-search result from a vector store.
type SearchHit struct {
	Content    string
	Metadata   map[string]string
	Similarity float32
}

// Page returns the page number recorded in the hit metadata, 0 if absent.
func (h SearchHit) Page() int {
	return PageOf(h.Metadata)
}

// ImageMap decodes the page-to-image-paths mapping carried in the hit
// metadata. Nil when the source document had no images.
func (h SearchHit) ImageMap() map[int][]string {
	return ImageMapOf(h.Metadata)
}

// PageOf reads the page number out of chunk metadata, 0 if absent.
func PageOf(md map[string]string) int {
	n, err := strconv.Atoi(md[MetaPage])
	if err != nil {
		return 0
	}
	return n
}

// ImageMapOf decodes the image map JSON carried in chunk metadata.
func ImageMapOf(md map[string]string) map[int][]string {
	raw := md[MetaImageMap]
	if raw == "" {
		return nil
	}
	var m map[int][]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
