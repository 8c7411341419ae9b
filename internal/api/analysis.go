package api

import (
	"encoding/json"
	"strings"
)

type AnalysisKind int

const (
	AnalysisAbsent AnalysisKind = iota
	AnalysisRaw
	AnalysisParsed
)

// AnalysisRecord is the structured form of an automated photo assessment.
type AnalysisRecord struct {
	DiseaseDetected string   `json:"disease_detected,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
	Analysis        string   `json:"analysis,omitempty"`
	Recommendations string   `json:"recommendations,omitempty"`
	Treatment       string   `json:"treatment,omitempty"`
	RequiresExpert  bool     `json:"requires_expert,omitempty"`
}

// PhotoAnalysis is the union-shaped photo_analysis field. The backend sends
// it as a JSON object, as a JSON string wrapping an object, or not at all.
// The shape is resolved exactly once, here at the wire boundary: everything
// downstream switches on Kind and never re-parses.
type PhotoAnalysis struct {
	Kind   AnalysisKind
	Raw    string
	Record AnalysisRecord
}

func (p PhotoAnalysis) Present() bool { return p.Kind == AnalysisParsed }

func (p *PhotoAnalysis) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*p = PhotoAnalysis{}
		return nil
	}

	if strings.HasPrefix(trimmed, "{") {
		var rec AnalysisRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			// Malformed object payloads degrade to absent, they are a
			// non-critical enrichment.
			*p = PhotoAnalysis{Kind: AnalysisRaw, Raw: trimmed}
			return nil
		}
		*p = PhotoAnalysis{Kind: AnalysisParsed, Record: rec}
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*p = PhotoAnalysis{}
		return nil
	}
	if strings.TrimSpace(raw) == "" {
		*p = PhotoAnalysis{}
		return nil
	}

	inner := strings.TrimSpace(raw)
	if strings.HasPrefix(inner, "{") {
		var rec AnalysisRecord
		if err := json.Unmarshal([]byte(inner), &rec); err == nil {
			*p = PhotoAnalysis{Kind: AnalysisParsed, Record: rec}
			return nil
		}
	}
	*p = PhotoAnalysis{Kind: AnalysisRaw, Raw: raw}
	return nil
}

func (p PhotoAnalysis) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case AnalysisParsed:
		return json.Marshal(p.Record)
	case AnalysisRaw:
		return json.Marshal(p.Raw)
	default:
		return []byte("null"), nil
	}
}
