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
	"github.com/smartfolder/smartfolder/internal/store"
)

// FaceTimeout bounds one face detection request.
const FaceTimeout = 30 * time.Second

// FaceClient detects faces through an external face recognition
// service. The service takes a multipart image upload and returns
// bounding boxes with face encodings.
type FaceClient struct {
	endpoint string
	client   *http.Client
}

var _ FaceDetector = (*FaceClient)(nil)

type faceResponse struct {
	Faces []struct {
		Box       store.Region `json:"box"`
		Embedding []float32    `json:"embedding"`
	} `json:"faces"`
}

// NewFaceClient creates a client for the face service at endpoint.
func NewFaceClient(endpoint string) *FaceClient {
	return &FaceClient{
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

// DetectFaces uploads the image at path and returns detected faces.
// Transient service failures are retried with backoff.
func (c *FaceClient) DetectFaces(ctx context.Context, path string) ([]Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.FaceDetectionError("failed to read image", err).WithDetail("path", path)
	}

	return errors.RetryWithResult(ctx, errors.DefaultRetryConfig(), func() ([]Face, error) {
		return c.doDetect(ctx, filepath.Base(path), data)
	})
}

func (c *FaceClient) doDetect(ctx context.Context, filename string, data []byte) ([]Face, error) {
	reqCtx, cancel := context.WithTimeout(ctx, FaceTimeout)
	defer cancel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, errors.FaceDetectionError("failed to build request", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, errors.FaceDetectionError("failed to build request", err)
	}
	if err := writer.Close(); err != nil {
		return nil, errors.FaceDetectionError("failed to build request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, errors.FaceDetectionError("failed to create request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.FaceDetectionError("face detection request failed", err).WithDetail("endpoint", c.endpoint)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.FaceDetectionError("face service returned an error", nil).
			WithDetail("status", resp.Status).
			WithDetail("body", string(respBody))
	}

	var result faceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.FaceDetectionError("failed to decode response", err)
	}

	faces := make([]Face, 0, len(result.Faces))
	for _, f := range result.Faces {
		if len(f.Embedding) == 0 {
			continue
		}
		faces = append(faces, Face{Region: f.Box, Embedding: f.Embedding})
	}
	return faces, nil
}
