package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/smartfolder/smartfolder/internal/errors"
)

// OCRTimeout bounds one OCR request.
const OCRTimeout = 30 * time.Second

// OCRClient extracts text from images and scanned documents through an
// external OCR service. The service takes a multipart image upload and
// returns the recognized text as JSON.
type OCRClient struct {
	endpoint string
	client   *http.Client
}

var _ TextExtractor = (*OCRClient)(nil)

type ocrResponse struct {
	Text string `json:"text"`
}

// NewOCRClient creates a client for the OCR service at endpoint.
func NewOCRClient(endpoint string) *OCRClient {
	return &OCRClient{
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

// ExtractText uploads the file at path and returns the recognized
// text. Transient service failures are retried with backoff.
func (c *OCRClient) ExtractText(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.ExtractionError("failed to read file for OCR", err).WithDetail("path", path)
	}

	return errors.RetryWithResult(ctx, errors.DefaultRetryConfig(), func() (string, error) {
		return c.doOCR(ctx, filepath.Base(path), data)
	})
}

func (c *OCRClient) doOCR(ctx context.Context, filename string, data []byte) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, OCRTimeout)
	defer cancel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", errors.ExtractionError("failed to build OCR request", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", errors.ExtractionError("failed to build OCR request", err)
	}
	if err := writer.Close(); err != nil {
		return "", errors.ExtractionError("failed to build OCR request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", errors.ExtractionError("failed to create OCR request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.ExtractionError("OCR request failed", err).WithDetail("endpoint", c.endpoint)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errors.ExtractionError("OCR service returned an error", nil).
			WithDetail("status", resp.Status).
			WithDetail("body", string(respBody))
	}

	var result ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.ExtractionError("failed to decode OCR response", err)
	}
	return result.Text, nil
}
