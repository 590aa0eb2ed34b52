package toss

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

// Config конфигурация клиента Toss Payments
type Config struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// Client HTTP-клиент Toss Payments API
type Client struct {
	cfg        Config
	httpClient *http.Client
	authHeader string
	log        *logger.Logger
}

// NewClient создает новый клиент Toss Payments
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tosspayments.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	// Toss использует Basic auth: base64(secretKey + ":")
	auth := base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey + ":"))

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		authHeader: "Basic " + auth,
		log:        log,
	}
}

// apiError тело ошибки Toss Payments API
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("toss api error %s: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Errorw("Toss request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("toss request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.log.Debugw("Toss request completed",
		"method", method, "path", path,
		"status", resp.StatusCode, "durationMs", time.Since(start).Milliseconds())

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("toss api status %d: %s", resp.StatusCode, string(data))
		}
		return &apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
