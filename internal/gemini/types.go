package gemini

import "time"

// SensorReading is one data point handed to the analyzer.
type SensorReading struct {
	SensorType string    `json:"sensorType"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Timestamp  time.Time `json:"timestamp"`
}

// CultivationInfo describes the cultivation under analysis.
type CultivationInfo struct {
	Strain         string `json:"strain"`
	Phase          string `json:"phase"`
	DaysSinceStart int    `json:"daysSinceStart"`
	NumPlants      int    `json:"numPlants"`
}

// AnalysisRequest is the payload sent to the model.
type AnalysisRequest struct {
	SensorData             []SensorReading `json:"sensorData"`
	CultivationInfo        CultivationInfo `json:"cultivationInfo"`
	UserQuery              string          `json:"userQuery,omitempty"`
	IncludeRecommendations bool            `json:"includeRecommendations"`
	IncludePredictions     bool            `json:"includePredictions"`
}

// AnalysisAnomaly is one problem the model found.
type AnalysisAnomaly struct {
	Parameter      string `json:"parameter"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// AnalysisResponse is the structured result extracted from the model.
type AnalysisResponse struct {
	Analysis        string            `json:"analysis"`
	Recommendations []string          `json:"recommendations"`
	Anomalies       []AnalysisAnomaly `json:"anomalies"`
	Predictions     string            `json:"predictions,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// SevereAnomalies returns the findings rated critical or high, in the
// order the model reported them.
func (r *AnalysisResponse) SevereAnomalies() []AnalysisAnomaly {
	var severe []AnalysisAnomaly
	for _, a := range r.Anomalies {
		if a.Severity == "critical" || a.Severity == "high" {
			severe = append(severe, a)
		}
	}
	return severe
}

// HasCriticalAnomaly reports whether any finding is critical.
func (r *AnalysisResponse) HasCriticalAnomaly() bool {
	for _, a := range r.Anomalies {
		if a.Severity == "critical" {
			return true
		}
	}
	return false
}

// generateContent wire types, the subset of the API we use.

type generateContentRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}
