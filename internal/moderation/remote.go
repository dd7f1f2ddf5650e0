package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"
)

// ModelInfo is what the inference server reports about the loaded model.
// InputSize is the square edge the model expects, 0 when unreported.
type ModelInfo struct {
	Labels    []string `json:"labels"`
	InputSize uint     `json:"inputSize"`
}

// RemoteClassifier talks to an NSFW inference server over HTTP.
//
//	GET  {endpoint}/model     -> ModelInfo
//	POST {endpoint}/classify  (image/png body) -> {"predictions": [...]}
type RemoteClassifier struct {
	endpoint  string
	inputSize uint
	client    *http.Client
}

// NewRemoteClassifier creates a classifier for endpoint that is fed
// inputSize x inputSize images. timeout bounds every HTTP exchange.
func NewRemoteClassifier(endpoint string, inputSize uint, timeout time.Duration) *RemoteClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteClassifier{
		endpoint:  strings.TrimRight(endpoint, "/"),
		inputSize: inputSize,
		client:    &http.Client{Timeout: timeout},
	}
}

// Load asks the server for its model description. A server that cannot
// describe its model is treated as not loaded.
func (c *RemoteClassifier) Load(ctx context.Context) (Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/model", nil)
	if err != nil {
		return nil, fmt.Errorf("moderation: build model request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moderation: fetch model info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moderation: model info returned status %d", resp.StatusCode)
	}

	var info ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("moderation: decode model info: %w", err)
	}
	if len(info.Labels) == 0 {
		return nil, fmt.Errorf("moderation: model reports no labels")
	}
	if info.InputSize != 0 && c.inputSize != 0 && info.InputSize != c.inputSize {
		return nil, fmt.Errorf("moderation: model expects %dpx input, configured for %dpx", info.InputSize, c.inputSize)
	}
	return &remoteModel{classifier: c, info: info}, nil
}

type remoteModel struct {
	classifier *RemoteClassifier
	info       ModelInfo
}

func (m *remoteModel) Classify(ctx context.Context, img image.Image) ([]Prediction, error) {
	var body bytes.Buffer
	if err := png.Encode(&body, img); err != nil {
		return nil, fmt.Errorf("moderation: encode input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.classifier.endpoint+"/classify", &body)
	if err != nil {
		return nil, fmt.Errorf("moderation: build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := m.classifier.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moderation: classify: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("moderation: classify returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Predictions []Prediction `json:"predictions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("moderation: decode predictions: %w", err)
	}
	return out.Predictions, nil
}
