package assistant

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/resolvehub/songra/internal/api"
)

func TestDirectAnswerWinsOverEverything(t *testing.T) {
	conf := 0.9
	resp := &api.AssistantResponse{
		LLMAnswer: "Réponse directe.",
		RAGItems:  []api.RAGItem{{Title: "Mildiou", Answer: "autre chose"}},
		PhotoAnalysis: api.PhotoAnalysis{
			Kind:   api.AnalysisParsed,
			Record: api.AnalysisRecord{DiseaseDetected: "Mildiou", Confidence: &conf},
		},
	}

	out := Normalize(resp)
	if out.Text != "Réponse directe." {
		t.Fatalf("text = %q", out.Text)
	}
}

func TestRAGAnswerScenario(t *testing.T) {
	resp := &api.AssistantResponse{
		RAGItems: []api.RAGItem{{
			Title:  "Mildiou",
			Answer: "Retirer les feuilles atteintes...",
			Source: "fiche-042",
		}},
	}

	out := Normalize(resp)
	if !strings.HasPrefix(out.Text, "1) Ce que je comprends") {
		t.Fatalf("unexpected opening: %q", out.Text)
	}
	if !strings.HasSuffix(out.Text, "(Source : fiche-042).") {
		t.Fatalf("unexpected closing: %q", out.Text)
	}
	if !strings.Contains(out.Text, "Retirer les feuilles atteintes...") {
		t.Fatalf("item answer not quoted verbatim: %q", out.Text)
	}
	if !strings.Contains(out.Text, "Mildiou") {
		t.Fatalf("item title not restated: %q", out.Text)
	}
}

func TestRAGFallbackAnswerPreferredOverItemAnswer(t *testing.T) {
	resp := &api.AssistantResponse{
		RAGItems:          []api.RAGItem{{Title: "Mildiou", Answer: "réponse fiche"}},
		RAGFallbackAnswer: "réponse consolidée",
	}

	out := Normalize(resp)
	if !strings.Contains(out.Text, "réponse consolidée") || strings.Contains(out.Text, "réponse fiche") {
		t.Fatalf("wrong answer selected: %q", out.Text)
	}
}

func TestRAGEmptyAnswerYieldsInsufficientMessage(t *testing.T) {
	resp := &api.AssistantResponse{
		RAGItems: []api.RAGItem{{Title: "Mildiou", Source: "fiche-001"}},
	}

	out := Normalize(resp)
	if out.Text != ragInsufficientAnswer {
		t.Fatalf("text = %q", out.Text)
	}
}

func TestRAGDefaultsForMissingTitleAndSource(t *testing.T) {
	resp := &api.AssistantResponse{
		RAGItems: []api.RAGItem{{Answer: "un conseil"}},
	}

	out := Normalize(resp)
	if !strings.Contains(out.Text, "Conseil local") {
		t.Fatalf("default title missing: %q", out.Text)
	}
	if !strings.HasSuffix(out.Text, "(Source : fiches locales).") {
		t.Fatalf("default source missing: %q", out.Text)
	}
}

func TestAnalysisReportBranch(t *testing.T) {
	conf := 0.82
	resp := &api.AssistantResponse{
		PhotoAnalysis: api.PhotoAnalysis{
			Kind: api.AnalysisParsed,
			Record: api.AnalysisRecord{
				DiseaseDetected: "Mildiou",
				Confidence:      &conf,
				Analysis:        "Feuilles atteintes sur la moitié du plant.",
				Treatment:       "Traitement cuprique.",
				RequiresExpert:  true,
			},
		},
	}

	out := Normalize(resp)
	for _, want := range []string{
		"🔬 ANALYSE IA LOCALE DÉTECTÉE",
		"Maladie: Mildiou",
		"Confiance: 82%",
		"💊 TRAITEMENT RECOMMANDÉ:\nTraitement cuprique.",
		"⚠️ Un expert va vérifier cette analyse pour confirmer.",
	} {
		if !strings.Contains(out.Text, want) {
			t.Fatalf("missing %q in %q", want, out.Text)
		}
	}
}

func TestAnalysisReportDefaults(t *testing.T) {
	resp := &api.AssistantResponse{
		PhotoAnalysis: api.PhotoAnalysis{Kind: api.AnalysisParsed},
	}

	out := Normalize(resp)
	for _, want := range []string{
		"Maladie: Non identifiée",
		"Confiance: N/A",
		"Analyse non disponible",
		"Consultez un expert",
		"✓ Diagnostic fiable. Un expert validera sous 24h.",
	} {
		if !strings.Contains(out.Text, want) {
			t.Fatalf("missing %q in %q", want, out.Text)
		}
	}
}

func TestNormalizeIsTotal(t *testing.T) {
	if out := Normalize(nil); out.Text != noAnswerFallback {
		t.Fatalf("nil payload: %q", out.Text)
	}
	if out := Normalize(&api.AssistantResponse{}); out.Text != noAnswerFallback {
		t.Fatalf("empty payload: %q", out.Text)
	}

	// A malformed photo_analysis string decodes to Raw, which counts as
	// absent here: the fixed fallback is used and nothing panics.
	var resp api.AssistantResponse
	if err := json.Unmarshal([]byte(`{"photo_analysis":"%%% pas du json"}`), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out := Normalize(&resp); out.Text != noAnswerFallback {
		t.Fatalf("malformed analysis: %q", out.Text)
	}
}

func TestMediaSurfacedIndependentlyOfBranch(t *testing.T) {
	media := []api.Media{{Type: "image", URL: "http://example/img.jpg", Title: "Mildiou sur feuille"}}
	resp := &api.AssistantResponse{
		LLMAnswer: "Réponse directe.",
		RAGItems:  []api.RAGItem{{Title: "Mildiou", Answer: "a", Media: media}},
	}

	out := Normalize(resp)
	if len(out.Media) != 1 || out.Media[0].URL != "http://example/img.jpg" {
		t.Fatalf("media = %+v", out.Media)
	}
}
