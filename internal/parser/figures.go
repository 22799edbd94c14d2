package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"scientific-rag/internal/helper"
)

// Extracted figure files follow {doc_id}_p{page}_i{index}.{ext}.
var figureFileRe = regexp.MustCompile(`^(.+)_p(\d+)_i(\d+)\.(png|jpg|jpeg|gif|bmp|tiff|webp)$`)

// ScanFigures collects previously extracted figure files for docID, keyed by
// page number and ordered by extraction index. A missing directory just means
// no figures.
func ScanFigures(figuresDir, docID string) map[int][]string {
	entries, err := os.ReadDir(figuresDir)
	if err != nil {
		return nil
	}

	type figureFile struct {
		page, index int
		path        string
	}
	var files []figureFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := figureFileRe.FindStringSubmatch(entry.Name())
		if m == nil || m[1] != docID {
			continue
		}
		page, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		index, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		files = append(files, figureFile{page, index, filepath.Join(figuresDir, entry.Name())})
	}
	if len(files) == 0 {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].page != files[j].page {
			return files[i].page < files[j].page
		}
		return files[i].index < files[j].index
	})
	imageMap := make(map[int][]string)
	for _, ff := range files {
		imageMap[ff.page] = append(imageMap[ff.page], ff.path)
	}
	return imageMap
}

// SaveFigure writes one extracted image under the naming convention. Files
// below minBytes are decorative strips and bullets, those are dropped.
func SaveFigure(figuresDir, docID string, page, index int, ext string, data []byte, minBytes int64) (string, error) {
	if int64(len(data)) < minBytes {
		return "", nil
	}
	if err := helper.CreateFolder(figuresDir); err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	name := fmt.Sprintf("%s_p%d_i%d.%s", docID, page, index, ext)
	path := filepath.Join(figuresDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write figure %s: %v", name, err)
	}
	return path, nil
}
