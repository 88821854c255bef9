package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverde/growmon-go/internal/errors"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(Config{
		APIKey:      "test-key",
		BaseURL:     "https://gemini.test/v1beta",
		Model:       "gemini-1.5-flash",
		Timeout:     5 * time.Second,
		CacheTTL:    time.Hour,
		RateLimitMS: 1,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	httpmock.ActivateNonDefault(client.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return client
}

func modelReply(t *testing.T, resp *AnalysisResponse) string {
	t.Helper()
	inner, err := json.Marshal(resp)
	require.NoError(t, err)
	wire := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": string(inner)}}}},
		},
	}
	raw, err := json.Marshal(wire)
	require.NoError(t, err)
	return string(raw)
}

func sampleRequest() AnalysisRequest {
	return AnalysisRequest{
		SensorData: []SensorReading{
			{SensorType: "temperature", Value: 32, Unit: "°C", Timestamp: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)},
		},
		CultivationInfo: CultivationInfo{
			Strain:         "Northern Lights",
			Phase:          "flowering",
			DaysSinceStart: 90,
			NumPlants:      4,
		},
		IncludeRecommendations: true,
	}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestAnalyzeCultivation_Success(t *testing.T) {
	client := newTestClient(t)

	expected := &AnalysisResponse{
		Analysis: "Temperature is running hot for flowering.",
		Anomalies: []AnalysisAnomaly{
			{Parameter: "temperature", Severity: "critical", Description: "32°C sustained", Recommendation: "Increase exhaust"},
		},
		Recommendations: []string{"Increase exhaust airflow"},
	}
	httpmock.RegisterResponder(http.MethodPost,
		"https://gemini.test/v1beta/models/gemini-1.5-flash:generateContent",
		httpmock.NewStringResponder(http.StatusOK, modelReply(t, expected)))

	resp, err := client.AnalyzeCultivation(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, expected.Analysis, resp.Analysis)
	require.Len(t, resp.Anomalies, 1)
	assert.True(t, resp.HasCriticalAnomaly())
	assert.False(t, resp.Timestamp.IsZero())
}

func TestAnalyzeCultivation_CachesIdenticalRequests(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost,
		"https://gemini.test/v1beta/models/gemini-1.5-flash:generateContent",
		httpmock.NewStringResponder(http.StatusOK, modelReply(t, &AnalysisResponse{Analysis: "fine"})))

	req := sampleRequest()
	_, err := client.AnalyzeCultivation(context.Background(), req)
	require.NoError(t, err)
	_, err = client.AnalyzeCultivation(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, httpmock.GetTotalCallCount())

	_, hits, _, _ := client.Metrics()
	assert.EqualValues(t, 1, hits)
}

func TestAnalyzeCultivation_StripsMarkdownFences(t *testing.T) {
	client := newTestClient(t)

	fenced := "```json\n{\"analysis\":\"ok\",\"anomalies\":[]}\n```"
	wire := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": fenced}}}},
		},
	}
	raw, err := json.Marshal(wire)
	require.NoError(t, err)

	httpmock.RegisterResponder(http.MethodPost,
		"https://gemini.test/v1beta/models/gemini-1.5-flash:generateContent",
		httpmock.NewStringResponder(http.StatusOK, string(raw)))

	resp, err := client.AnalyzeCultivation(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Analysis)
}

func TestAnalyzeCultivation_MalformedPayload(t *testing.T) {
	client := newTestClient(t)

	wire := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": "not json at all"}}}},
		},
	}
	raw, err := json.Marshal(wire)
	require.NoError(t, err)

	httpmock.RegisterResponder(http.MethodPost,
		"https://gemini.test/v1beta/models/gemini-1.5-flash:generateContent",
		httpmock.NewStringResponder(http.StatusOK, string(raw)))

	_, err = client.AnalyzeCultivation(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAIAnalysis))
}

func TestAnalyzeCultivation_APIErrorStatus(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder(http.MethodPost,
		"https://gemini.test/v1beta/models/gemini-1.5-flash:generateContent",
		httpmock.NewStringResponder(http.StatusTooManyRequests, `{"error":"quota"}`))

	_, err := client.AnalyzeCultivation(context.Background(), sampleRequest())
	require.Error(t, err)

	var enhanced *errors.EnhancedError
	require.True(t, errors.As(err, &enhanced))
	assert.Equal(t, http.StatusTooManyRequests, enhanced.Context["status_code"])
}

func TestBuildPrompt_IncludesSensorDataAndQuery(t *testing.T) {
	req := sampleRequest()
	req.UserQuery = "Are my buds at risk?"
	prompt := buildPrompt(&req)

	assert.Contains(t, prompt, "Northern Lights")
	assert.Contains(t, prompt, "flowering")
	assert.Contains(t, prompt, fmt.Sprintf("%.2f", 32.0))
	assert.Contains(t, prompt, "Are my buds at risk?")
	assert.Contains(t, prompt, `"recommendations"`)
	assert.NotContains(t, prompt, `"predictions"`)
}
