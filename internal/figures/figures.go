package figures

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"scientific-rag/internal/models"
)

const (
	defaultMinDim    = 150
	defaultMinAspect = 0.2
	defaultMaxAspect = 5.0
)

// Associator filters candidate figure files down to the ones worth showing:
// readable images, big enough to carry content, sanely proportioned and not
// duplicates of each other.
type Associator struct {
	minDim    int
	minAspect float64
	maxAspect float64
}

func NewAssociator() *Associator {
	return &Associator{
		minDim:    defaultMinDim,
		minAspect: defaultMinAspect,
		maxAspect: defaultMaxAspect,
	}
}

// QueryWantsImages reports whether the question is asking to see figures.
// Only then are images attached to an answer.
func QueryWantsImages(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range models.VisualKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// PagesAround returns the candidate images for a chunk: the images of the
// chunk's page and of one page either side, in page order.
func PagesAround(imageMap map[int][]string, page int) []string {
	if len(imageMap) == 0 {
		return nil
	}
	var paths []string
	for _, p := range []int{page - 1, page, page + 1} {
		paths = append(paths, imageMap[p]...)
	}
	return paths
}

// Filter applies the display filters in insertion order: repeated paths are
// dropped first, then unreadable files, undersized images, extreme aspect
// ratios and exact content duplicates. A failing image is skipped silently,
// association never breaks an answer.
func (a *Associator) Filter(paths []string) []string {
	seenPaths := make(map[string]bool)
	seenHashes := make(map[string]bool)
	var kept []string
	for _, path := range paths {
		if seenPaths[path] {
			continue
		}
		seenPaths[path] = true

		data, err := os.ReadFile(path)
		if err != nil {
			log.Debug().Err(err).Str("image", path).Msg("Skipping unreadable image")
			continue
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			log.Debug().Err(err).Str("image", path).Msg("Skipping undecodable image")
			continue
		}
		if cfg.Width < a.minDim || cfg.Height < a.minDim {
			continue
		}
		aspect := float64(cfg.Width) / float64(cfg.Height)
		if aspect < a.minAspect || aspect > a.maxAspect {
			continue
		}

		sum := md5.Sum(data)
		hash := hex.EncodeToString(sum[:])
		if seenHashes[hash] {
			continue
		}
		seenHashes[hash] = true
		kept = append(kept, path)
	}
	return kept
}
