package api

import (
	"encoding/json"
	"testing"
)

func decodeAnalysis(t *testing.T, payload string) PhotoAnalysis {
	t.Helper()
	var resp AssistantResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return resp.PhotoAnalysis
}

func TestPhotoAnalysisObjectParses(t *testing.T) {
	p := decodeAnalysis(t, `{"photo_analysis":{"disease_detected":"Mildiou","confidence":0.82,"requires_expert":true}}`)
	if p.Kind != AnalysisParsed {
		t.Fatalf("kind = %v", p.Kind)
	}
	if p.Record.DiseaseDetected != "Mildiou" || !p.Record.RequiresExpert {
		t.Fatalf("record = %+v", p.Record)
	}
	if p.Record.Confidence == nil || *p.Record.Confidence != 0.82 {
		t.Fatalf("confidence = %v", p.Record.Confidence)
	}
}

func TestPhotoAnalysisStringWrappingObjectParses(t *testing.T) {
	p := decodeAnalysis(t, `{"photo_analysis":"{\"disease_detected\":\"Rouille\"}"}`)
	if p.Kind != AnalysisParsed || p.Record.DiseaseDetected != "Rouille" {
		t.Fatalf("got %+v", p)
	}
}

func TestPhotoAnalysisMalformedStringDegradesToRaw(t *testing.T) {
	p := decodeAnalysis(t, `{"photo_analysis":"pas du json"}`)
	if p.Kind != AnalysisRaw || p.Raw != "pas du json" {
		t.Fatalf("got %+v", p)
	}
	if p.Present() {
		t.Fatal("raw payload must not count as a usable analysis")
	}
}

func TestPhotoAnalysisAbsentOrNull(t *testing.T) {
	for _, payload := range []string{`{}`, `{"photo_analysis":null}`, `{"photo_analysis":""}`} {
		if p := decodeAnalysis(t, payload); p.Kind != AnalysisAbsent {
			t.Fatalf("payload %s: kind = %v", payload, p.Kind)
		}
	}
}

func TestLegacyHealthCategoryIsFolded(t *testing.T) {
	var tk Ticket
	if err := json.Unmarshal([]byte(`{"id":1,"category":"health"}`), &tk); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tk.Category != CategorySOSAccident {
		t.Fatalf("category = %q", tk.Category)
	}
}
