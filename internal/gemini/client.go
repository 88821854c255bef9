// Package gemini calls the Gemini generateContent API to analyze
// cultivation sensor history, with response caching and request pacing.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/mverde/growmon-go/internal/conf"
	"github.com/mverde/growmon-go/internal/errors"
	"github.com/mverde/growmon-go/internal/logging"
)

// Package-level logger specific to the gemini service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "gemini.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "gemini", serviceLevelVar)
	if err != nil {
		log.Printf("FATAL: Failed to initialize gemini file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "gemini")
		closeLogger = func() error { return nil }
	}
}

// Config holds client settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	CacheTTL    time.Duration
	RateLimitMS int
}

// DefaultConfig returns sensible defaults for everything but the key.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
		Model:       "gemini-1.5-flash",
		Timeout:     30 * time.Second,
		CacheTTL:    15 * time.Minute,
		RateLimitMS: 1000,
	}
}

// ConfigFromSettings maps application settings onto a client config.
func ConfigFromSettings(s *conf.GeminiSettings) Config {
	cfg := DefaultConfig()
	cfg.APIKey = s.APIKey
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}
	if s.Model != "" {
		cfg.Model = s.Model
	}
	if s.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(s.TimeoutSeconds) * time.Second
	}
	if s.CacheTTLMinutes > 0 {
		cfg.CacheTTL = time.Duration(s.CacheTTLMinutes) * time.Minute
	}
	if s.RateLimitMS > 0 {
		cfg.RateLimitMS = s.RateLimitMS
	}
	return cfg
}

// Client talks to the Gemini API.
type Client struct {
	config      Config
	httpClient  *http.Client
	cache       *cache.Cache
	rateLimiter *time.Ticker
	mu          sync.RWMutex
	lastRequest time.Time
	debug       bool

	metrics struct {
		apiCalls    int64
		cacheHits   int64
		cacheMisses int64
		apiErrors   int64
		mu          sync.RWMutex
	}
}

// NewClient creates a Gemini API client.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("Gemini API key is required").
			Category(errors.CategoryConfiguration).
			Component("gemini").
			Build()
	}

	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.RateLimitMS == 0 {
		config.RateLimitMS = defaults.RateLimitMS
	}

	settings := conf.GetSettings()
	debug := settings != nil && settings.Debug

	client := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache:       cache.New(config.CacheTTL, config.CacheTTL*2),
		rateLimiter: time.NewTicker(time.Duration(config.RateLimitMS) * time.Millisecond),
		debug:       debug,
	}

	logger.Info("Gemini client initialized",
		"base_url", config.BaseURL,
		"model", config.Model,
		"cache_ttl", config.CacheTTL,
		"rate_limit_ms", config.RateLimitMS,
		"api_key_configured", config.APIKey != "")

	return client, nil
}

// Close cleans up client resources.
func (c *Client) Close() {
	c.rateLimiter.Stop()
	logger.Info("Closing Gemini client")

	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing gemini logger: %v", err)
		}
	}
}

// AnalyzeCultivation asks the model to assess the sensor history.
// Identical requests within the cache TTL are served from cache.
func (c *Client) AnalyzeCultivation(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	cacheKey := analysisCacheKey(&req)

	if cached, found := c.cache.Get(cacheKey); found {
		if resp, ok := cached.(*AnalysisResponse); ok {
			c.metrics.mu.Lock()
			c.metrics.cacheHits++
			c.metrics.mu.Unlock()

			logger.Debug("analysis cache hit",
				"cache_key", cacheKey,
				"strain", req.CultivationInfo.Strain)
			return resp, nil
		}
	}

	c.metrics.mu.Lock()
	c.metrics.cacheMisses++
	c.metrics.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	prompt := buildPrompt(&req)
	payload := generateContentRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}
	body, err := json.Marshal(&payload)
	if err != nil {
		return nil, errors.Newf("failed to encode analysis request: %w", err).
			Category(errors.CategoryAIAnalysis).
			Component("gemini").
			Build()
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.config.BaseURL, c.config.Model)

	var wire generateContentResponse
	if err := c.doRequest(reqCtx, http.MethodPost, url, bytes.NewReader(body), &wire); err != nil {
		return nil, err
	}

	resp, err := extractAnalysis(&wire)
	if err != nil {
		return nil, err
	}
	if resp.Timestamp.IsZero() {
		resp.Timestamp = time.Now()
	}

	c.cache.Set(cacheKey, resp, cache.DefaultExpiration)

	logger.Info("cultivation analyzed",
		"strain", req.CultivationInfo.Strain,
		"phase", req.CultivationInfo.Phase,
		"anomalies", len(resp.Anomalies),
		"recommendations", len(resp.Recommendations))

	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, method, url string, body io.Reader, result any) error {
	// Rate limiting
	c.mu.Lock()
	<-c.rateLimiter.C
	c.lastRequest = time.Now()
	c.mu.Unlock()

	c.metrics.mu.Lock()
	c.metrics.apiCalls++
	c.metrics.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		c.countError()
		return errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Context("method", method).
			Context("url", url).
			Component("gemini").
			Build()
	}

	req.Header.Set("x-goog-api-key", c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.debug {
		logger.Debug("Gemini API request",
			"method", method,
			"url", url)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countError()
		logger.Error("Gemini API request failed",
			"error", err,
			"method", method,
			"url", url)
		return errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			Context("method", method).
			Context("url", url).
			Component("gemini").
			Build()
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		c.countError()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Error("Gemini API returned error status",
			"status_code", resp.StatusCode,
			"url", url)
		return errors.Newf("Gemini API error: status %d", resp.StatusCode).
			Category(errors.CategoryAIAnalysis).
			Context("status_code", resp.StatusCode).
			Context("body", string(raw)).
			Component("gemini").
			Build()
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		c.countError()
		return errors.Newf("failed to decode Gemini response: %w", err).
			Category(errors.CategoryAIAnalysis).
			Context("url", url).
			Component("gemini").
			Build()
	}
	return nil
}

func (c *Client) countError() {
	c.metrics.mu.Lock()
	c.metrics.apiErrors++
	c.metrics.mu.Unlock()
}

// Metrics returns a snapshot of client counters.
func (c *Client) Metrics() (apiCalls, cacheHits, cacheMisses, apiErrors int64) {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()
	return c.metrics.apiCalls, c.metrics.cacheHits, c.metrics.cacheMisses, c.metrics.apiErrors
}

func analysisCacheKey(req *AnalysisRequest) string {
	latest := time.Time{}
	for _, r := range req.SensorData {
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}
	return fmt.Sprintf("analysis:%s:%s:%d:%d",
		req.CultivationInfo.Strain,
		req.CultivationInfo.Phase,
		req.CultivationInfo.DaysSinceStart,
		latest.Unix())
}

// buildPrompt renders the analysis request into the instruction text
// sent to the model. The model is told to answer with bare JSON so the
// response can be parsed back into an AnalysisResponse.
func buildPrompt(req *AnalysisRequest) string {
	var b strings.Builder
	b.WriteString("You are an expert cannabis cultivation advisor. Analyze the following grow data.\n\n")
	fmt.Fprintf(&b, "Cultivation: strain %q, phase %s, day %d, %d plant(s).\n",
		req.CultivationInfo.Strain,
		req.CultivationInfo.Phase,
		req.CultivationInfo.DaysSinceStart,
		req.CultivationInfo.NumPlants)

	if len(req.SensorData) > 0 {
		b.WriteString("\nRecent sensor readings:\n")
		for _, r := range req.SensorData {
			fmt.Fprintf(&b, "- %s: %.2f %s at %s\n",
				r.SensorType, r.Value, r.Unit, r.Timestamp.Format(time.RFC3339))
		}
	}
	if req.UserQuery != "" {
		fmt.Fprintf(&b, "\nGrower question: %s\n", req.UserQuery)
	}

	b.WriteString("\nRespond with a single JSON object, no markdown fences, with fields: ")
	b.WriteString(`"analysis" (string), "anomalies" (array of {parameter, severity, description, recommendation}, severity one of low|medium|high|critical)`)
	if req.IncludeRecommendations {
		b.WriteString(`, "recommendations" (array of strings)`)
	}
	if req.IncludePredictions {
		b.WriteString(`, "predictions" (string)`)
	}
	b.WriteString(".")
	return b.String()
}

// extractAnalysis pulls the JSON object out of the model's text reply.
// Models sometimes wrap JSON in markdown fences despite instructions,
// so fences are stripped before decoding.
func extractAnalysis(wire *generateContentResponse) (*AnalysisResponse, error) {
	if len(wire.Candidates) == 0 || len(wire.Candidates[0].Content.Parts) == 0 {
		return nil, errors.Newf("Gemini response contained no candidates").
			Category(errors.CategoryAIAnalysis).
			Component("gemini").
			Build()
	}

	text := strings.TrimSpace(wire.Candidates[0].Content.Parts[0].Text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var resp AnalysisResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, errors.Newf("malformed analysis payload: %w", err).
			Category(errors.CategoryAIAnalysis).
			Context("payload_prefix", truncate(text, 120)).
			Component("gemini").
			Build()
	}
	return &resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
