package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Status values reported by the provider for a submitted prediction.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Terminal reports whether the provider will not change this status again.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Prediction is the provider's view of one asynchronous compute job.
type Prediction struct {
	ID     string          `json:"id"`
	Status Status          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// FirstOutputURL normalizes the provider's output field, which is either a
// single URL string or an array of URL strings depending on the model.
func (p *Prediction) FirstOutputURL() string {
	if len(p.Output) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

// Client is the contract with the external asynchronous prediction service:
// submit a payload for a handle, poll the handle for status/output, and
// best-effort cancel.
type Client interface {
	Submit(ctx context.Context, input map[string]interface{}) (string, error)
	Get(ctx context.Context, handle string) (*Prediction, error)
	Cancel(ctx context.Context, handle string) error
	// FetchOutput downloads the bytes behind a provider delivery URL.
	FetchOutput(ctx context.Context, url string) ([]byte, error)
}

type httpClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  zerolog.Logger
}

// NewClient creates a prediction service client.
func NewClient(baseURL, token string, logger zerolog.Logger) Client {
	return &httpClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger.With().Str("service", "PredictionClient").Logger(),
	}
}

type submitRequest struct {
	Input map[string]interface{} `json:"input"`
}

func (c *httpClient) Submit(ctx context.Context, input map[string]interface{}) (string, error) {
	body, err := json.Marshal(submitRequest{Input: input})
	if err != nil {
		return "", fmt.Errorf("marshaling prediction input: %w", err)
	}

	var p Prediction
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v1/predictions", bytes.NewReader(body), &p); err != nil {
		return "", err
	}
	if p.ID == "" {
		return "", fmt.Errorf("prediction service accepted the submission but returned no id")
	}
	return p.ID, nil
}

func (c *httpClient) Get(ctx context.Context, handle string) (*Prediction, error) {
	var p Prediction
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/v1/predictions/%s", c.baseURL, handle), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *httpClient) Cancel(ctx context.Context, handle string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("%s/v1/predictions/%s/cancel", c.baseURL, handle), nil, nil)
}

func (c *httpClient) FetchOutput(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating output fetch request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching prediction output: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prediction output fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading prediction output: %w", err)
	}
	return data, nil
}

func (c *httpClient) do(ctx context.Context, method, url string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("making request to prediction service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			c.logger.Warn().Err(readErr).Int("status_code", resp.StatusCode).Msg("Failed to read error body from prediction service")
			return fmt.Errorf("prediction service returned status %d", resp.StatusCode)
		}
		c.logger.Error().
			Int("status_code", resp.StatusCode).
			Str("error_body", string(bodyBytes)).
			Msg("Prediction service returned error")
		return fmt.Errorf("prediction service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding prediction service response: %w", err)
	}
	return nil
}
