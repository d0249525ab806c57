package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrEmptyDocument is returned when there is no HTML to convert.
var ErrEmptyDocument = errors.New("html document must not be empty")

// Converter turns a complete HTML document into PDF bytes.
type Converter interface {
	ConvertHTML(ctx context.Context, html []byte) ([]byte, error)
}

// GotenbergClient converts HTML through a Gotenberg compatible Chromium
// endpoint (POST /forms/chromium/convert/html, multipart index.html).
type GotenbergClient struct {
	httpClient *resty.Client
}

// NewClient builds a converter for the service listening at baseURL.
func NewClient(baseURL string, timeout time.Duration) *GotenbergClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout)

	return &GotenbergClient{httpClient: client}
}

// ConvertHTML uploads the document and returns the rendered A4 PDF.
func (c *GotenbergClient) ConvertHTML(ctx context.Context, html []byte) ([]byte, error) {
	if len(bytes.TrimSpace(html)) == 0 {
		return nil, ErrEmptyDocument
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFileReader("files", "index.html", bytes.NewReader(html)).
		SetFormData(map[string]string{
			"paperWidth":  "8.27",
			"paperHeight": "11.7",
		}).
		Post("/forms/chromium/convert/html")
	if err != nil {
		return nil, fmt.Errorf("convert html to pdf: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("pdf converter error: status=%d, body=%s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	return resp.Body(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
