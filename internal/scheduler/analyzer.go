package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/mverde/growmon-go/internal/errors"
	"github.com/mverde/growmon-go/internal/gemini"
	"github.com/mverde/growmon-go/internal/observability/metrics"
	"github.com/mverde/growmon-go/internal/rules"
)

// PacedAnalyzer wraps the AI collaborator with a token bucket so batch
// evaluation cannot flood the API. Callers block until a token is
// available or their context expires.
type PacedAnalyzer struct {
	inner   rules.Analyzer
	metrics *metrics.MonitoringMetrics

	mu            sync.Mutex
	tokens        float64
	burst         float64
	ratePerMinute float64
	lastRefill    time.Time
	now           func() time.Time
}

// NewPacedAnalyzer builds a paced wrapper. Non-positive rates fall
// back to one request per minute with a burst of one.
func NewPacedAnalyzer(inner rules.Analyzer, requestsPerMinute, burst int) *PacedAnalyzer {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	now := time.Now()
	return &PacedAnalyzer{
		inner:         inner,
		tokens:        float64(burst),
		burst:         float64(burst),
		ratePerMinute: float64(requestsPerMinute),
		lastRefill:    now,
		now:           time.Now,
	}
}

// SetMetrics attaches metric collectors.
func (p *PacedAnalyzer) SetMetrics(m *metrics.MonitoringMetrics) {
	p.metrics = m
}

// AnalyzeCultivation acquires a token and delegates.
func (p *PacedAnalyzer) AnalyzeCultivation(ctx context.Context, req gemini.AnalysisRequest) (*gemini.AnalysisResponse, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := p.inner.AnalyzeCultivation(ctx, req)
	if p.metrics != nil {
		p.metrics.RecordAIRequest(time.Since(start), err)
	}
	return resp, err
}

func (p *PacedAnalyzer) acquire(ctx context.Context) error {
	for {
		wait, ok := p.tryTake()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.New(ctx.Err()).
				Component("scheduler").
				Category(errors.CategoryCancellation).
				Context("operation", "ai_rate_limit_wait").
				Build()
		case <-time.After(wait):
		}
	}
}

// tryTake consumes a token if one is available, otherwise returns how
// long until the next token accrues.
func (p *PacedAnalyzer) tryTake() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	elapsed := now.Sub(p.lastRefill).Minutes()
	if elapsed > 0 {
		p.tokens += elapsed * p.ratePerMinute
		if p.tokens > p.burst {
			p.tokens = p.burst
		}
		p.lastRefill = now
	}

	if p.tokens >= 1 {
		p.tokens--
		return 0, true
	}
	deficit := 1 - p.tokens
	wait := time.Duration(deficit / p.ratePerMinute * float64(time.Minute))
	if wait < 10*time.Millisecond {
		wait = 10 * time.Millisecond
	}
	return wait, false
}
