package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"scientific-rag/internal/config"
	"scientific-rag/internal/models"
)

// ServiceClient talks to a remote parse service that OCRs a document and
// returns per-page text plus the images embedded in each page. Wire format:
// multipart POST of the file to {base}/v1/parse, JSON response
//
//	{"source": "x.pdf", "pages": [{"page": 1, "text": "...",
//	  "images": [{"index": 0, "ext": "png", "data": "<base64>"}]}]}
type ServiceClient struct {
	baseURL       string
	key           string
	figuresDir    string
	minImageBytes int64
	client        *http.Client
}

// NewServiceClient validates the credential up front so a missing key fails
// before any files are touched.
func NewServiceClient(cfg *config.ParserConfig, figuresDir string) (*ServiceClient, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("%w: parse service at %s requires PARSE_SERVICE_API_KEY", config.ErrMissingCredential, cfg.ServiceURL)
	}
	return &ServiceClient{
		baseURL:       strings.TrimRight(cfg.ServiceURL, "/"),
		key:           cfg.Key,
		figuresDir:    figuresDir,
		minImageBytes: cfg.MinImageBytes,
		client:        &http.Client{Timeout: 120 * time.Second},
	}, nil
}

type parsePage struct {
	Page   int    `json:"page"`
	Text   string `json:"text"`
	Images []struct {
		Index int    `json:"index"`
		Ext   string `json:"ext"`
		Data  []byte `json:"data"`
	} `json:"images"`
}

type parseResponse struct {
	Source string      `json:"source"`
	Pages  []parsePage `json:"pages"`
}

// Parse uploads the file and converts the response into per-page documents,
// writing embedded images into the figures directory as it goes.
func (c *ServiceClient) Parse(ctx context.Context, path string) ([]models.SourceDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/parse", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("parse service request failed: %d, %s", resp.StatusCode, string(b))
	}

	var pr parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("failed to decode parse response: %v", err)
	}

	source := filepath.Base(path)
	docID := DocID(path)
	var docs []models.SourceDocument
	for _, pg := range pr.Pages {
		for _, img := range pg.Images {
			if _, err := c.saveImage(docID, pg.Page, img.Index, img.Ext, img.Data); err != nil {
				log.Debug().Err(err).Str("doc_id", docID).Int("page", pg.Page).Msg("Skipping embedded image")
			}
		}
		text := normalizeText(pg.Text)
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, models.SourceDocument{
			Text:   text,
			Source: source,
			DocID:  docID,
			Page:   pg.Page,
		})
	}
	return docs, nil
}

func (c *ServiceClient) saveImage(docID string, page, index int, ext string, data []byte) (string, error) {
	return SaveFigure(c.figuresDir, docID, page, index, ext, data, c.minImageBytes)
}
