package imagesearch

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/search-evaluator/internal/logger"
	"github.com/spigell/search-evaluator/internal/resilience"
)

const (
	DefaultBaseURL = "https://api.unsplash.com"
	SearchPath     = "/search/photos"

	userAgent       = "spigell/search-evaluator"
	contentEncoding = "gzip"
	defaultPerPage  = 3
	defaultTimeout  = 10 * time.Second
	operationName   = "image_search"
)

var ErrNotConfigured = errors.New("image search api key is not configured")

// StatusError is returned for non-200 answers from the image API.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("image search bad status: %s", e.Status)
}

type photo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	URLs        struct {
		Raw     string `json:"raw"`
		Full    string `json:"full"`
		Regular string `json:"regular"`
		Small   string `json:"small"`
	} `json:"urls"`
}

type searchResponse struct {
	Total      int   `json:"total"`
	TotalPages int   `json:"total_pages"`
	Results    []any `json:"results"`
}

// Client queries an Unsplash-compatible photo search API.
type Client struct {
	apiKey   string
	baseURL  string
	perPage  int
	executor *resilience.Executor
	logger   *zap.Logger

	HTTPClient *http.Client
}

type ClientConfig struct {
	APIKey  string
	BaseURL string
	PerPage int
	Timeout time.Duration
	Retry   resilience.Config
}

func NewClient(cfg ClientConfig, log *zap.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	log = logger.WithFields(log, zap.String("collaborator", operationName))

	return &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    baseURL,
		perPage:    perPage,
		executor:   resilience.NewExecutor(cfg.Retry, log),
		logger:     log,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an API key is available.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Search returns candidate image URLs for keyword, best match first.
func (c *Client) Search(ctx context.Context, keyword string) ([]string, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, errors.New("keyword must not be empty")
	}

	q := url.Values{}
	q.Set("query", keyword)
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("orientation", "landscape")

	var response searchResponse
	err := c.executor.Execute(ctx, operationName, func(ctx context.Context) error {
		return c.getJSON(ctx, c.baseURL+SearchPath, q, &response)
	}, classifyError)
	if err != nil {
		return nil, fmt.Errorf("search images: %w", err)
	}

	var photos []photo
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &photos,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(response.Results); err != nil {
		return nil, fmt.Errorf("decode image results: %w", err)
	}

	urls := make([]string, 0, len(photos))
	for _, p := range photos {
		for _, candidate := range []string{p.URLs.Regular, p.URLs.Small, p.URLs.Full, p.URLs.Raw} {
			if candidate = strings.TrimSpace(candidate); candidate != "" {
				urls = append(urls, candidate)
				break
			}
		}
	}

	c.logger.Debug("image search finished",
		zap.String("keyword", keyword),
		zap.Int("total", response.Total),
		zap.Int("candidates", len(urls)),
	)

	return urls, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, q url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Client-ID "+c.apiKey)
	req.Header.Set("Accept-Version", "v1")
	req.Header.Set("Accept-Encoding", contentEncoding)
	req.Header.Set("User-Agent", userAgent)
	req.URL.RawQuery = q.Encode()

	c.logger.Debug("make request", zap.String("url", req.URL.Redacted()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	return json.NewDecoder(reader).Decode(target)
}

func classifyError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		retryable := statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{RecordFailure: true}
}
