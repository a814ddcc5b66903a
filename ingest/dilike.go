package ingest

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
	"time"

	"github.com/contextbuilder/contextbuilder/doctext"
)

// DIConfig configures the external Document Intelligence provider.
type DIConfig struct {
	Endpoint string
	APIKey   string
}

// DIProvider delegates ingestion to an external document-intelligence
// service: upload the source file, poll until the extraction job
// completes, and translate its paginated result into canonical pages. This
// is the upload-then-poll-job shape used by every hosted document parsing
// API this codebase has talked to.
type DIProvider struct {
	cfg    DIConfig
	client *http.Client
}

// NewDIProvider creates a Document Intelligence provider. If cfg.Endpoint
// is empty the default multi-tenant endpoint is used.
func NewDIProvider(cfg DIConfig) *DIProvider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.cloud.llamaindex.ai/api/parsing"
	}
	return &DIProvider{cfg: cfg, client: &http.Client{Timeout: 60 * time.Second}}
}

func (p *DIProvider) SupportedFormats() []string {
	return []string{"pdf", "docx", "doc", "pptx", "ppt", "xlsx", "xls"}
}

func (p *DIProvider) Ingest(ctx context.Context, path string) ([]doctext.Page, error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("ingest: document intelligence API key not configured")
	}

	jobID, err := p.uploadFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("ingest: uploading to document intelligence: %w", err)
	}

	diPages, err := p.pollResult(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("ingest: document intelligence result: %w", err)
	}

	pages := make([]doctext.Page, 0, len(diPages))
	for _, text := range diPages {
		text = doctext.NormalizePageText(text)
		pages = append(pages, doctext.Page{
			Text:    text,
			Source:  doctext.SourceDocumentIntelligence,
			Quality: doctext.Quality{Readability: assessReadability(text)},
		})
	}
	return pages, nil
}

func (p *DIProvider) uploadFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.Endpoint+"/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (p *DIProvider) pollResult(ctx context.Context, jobID string) ([]string, error) {
	for i := 0; i < 60; i++ { // max ~5 minutes at 5s/poll
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}

		req, err := http.NewRequestWithContext(ctx, "GET",
			fmt.Sprintf("%s/job/%s/result/pages", p.cfg.Endpoint, jobID), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

		resp, err := p.client.Do(req)
		if err != nil {
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			var result struct {
				Pages []struct {
					Text string `json:"text"`
				} `json:"pages"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return []string{string(body)}, nil // raw text fallback
			}
			texts := make([]string, len(result.Pages))
			for i, pg := range result.Pages {
				texts[i] = pg.Text
			}
			return texts, nil
		}

		if resp.StatusCode != http.StatusAccepted {
			return nil, fmt.Errorf("document intelligence error %d: %s", resp.StatusCode, string(body))
		}
	}

	return nil, fmt.Errorf("document intelligence job timed out")
}
