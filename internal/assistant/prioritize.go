package assistant

import (
	"fmt"
	"strings"

	"github.com/resolvehub/songra/internal/api"
)

// Rendered is the single coherent assistant message derived from one backend
// payload, plus the media and analysis attached to it.
type Rendered struct {
	Text     string
	Media    []api.Media
	Analysis api.PhotoAnalysis
}

const (
	ragInsufficientAnswer = "Je n'ai pas assez d'informations dans ma base locale pour répondre précisément. " +
		"Parle avec un expert proche de chez toi pour plus de détails."

	noAnswerFallback = "Je n'ai pas assez d'informations pour compléter la réponse. " +
		"Parlez-en à un expert si le problème persiste."
)

// Normalize picks exactly one response source, first match wins: the direct
// answer, then retrieved knowledge items, then the photo analysis, then a
// fixed fallback. It is total: any payload, including one missing all three
// sources, produces a message. The first knowledge item's media is surfaced
// whichever text branch fired.
func Normalize(resp *api.AssistantResponse) Rendered {
	out := Rendered{}
	if resp == nil {
		out.Text = noAnswerFallback
		return out
	}

	out.Analysis = resp.PhotoAnalysis
	if len(resp.RAGItems) > 0 {
		out.Media = resp.RAGItems[0].Media
	}

	switch {
	case strings.TrimSpace(resp.LLMAnswer) != "":
		out.Text = resp.LLMAnswer
	case len(resp.RAGItems) > 0:
		out.Text = buildStructuredRAGAnswer(resp.RAGItems, resp.RAGFallbackAnswer)
	case resp.PhotoAnalysis.Present():
		out.Text = buildAnalysisReport(resp.PhotoAnalysis.Record)
	default:
		out.Text = noAnswerFallback
	}
	return out
}

// buildStructuredRAGAnswer restates the problem from the best item's title,
// quotes its answer verbatim and closes with the local-expert recommendation
// attributing the source.
func buildStructuredRAGAnswer(items []api.RAGItem, fallbackAnswer string) string {
	best := items[0]

	title := best.Title
	if title == "" {
		title = "Conseil local"
	}
	answer := fallbackAnswer
	if answer == "" {
		answer = best.Answer
	}
	source := best.Source
	if source == "" {
		source = "fiches locales"
	}

	if answer == "" {
		return ragInsufficientAnswer
	}

	return "1) Ce que je comprends de ton problème :\n" +
		fmt.Sprintf("Tu expliques un souci lié à : %s. Je vais utiliser les conseils déjà validés localement.\n\n", title) +
		"2) Conseils pratiques à suivre :\n" +
		answer + "\n\n" +
		"3) Quand appeler un expert :\n" +
		"Si malgré ces conseils la situation ne s'améliore pas, si le problème devient plus grave, ou si tu as un doute, " +
		"va voir un agent agricole, un vétérinaire ou un service technique local pour vérifier sur place. " +
		fmt.Sprintf("(Source : %s).", source)
}

func buildAnalysisReport(rec api.AnalysisRecord) string {
	disease := rec.DiseaseDetected
	if disease == "" {
		disease = "Non identifiée"
	}

	confidence := "N/A"
	if rec.Confidence != nil && *rec.Confidence > 0 {
		confidence = fmt.Sprintf("%.0f%%", *rec.Confidence*100)
	}

	analysis := rec.Analysis
	if analysis == "" {
		analysis = rec.Recommendations
	}
	if analysis == "" {
		analysis = "Analyse non disponible"
	}

	treatment := rec.Treatment
	if treatment == "" {
		treatment = rec.Recommendations
	}
	if treatment == "" {
		treatment = "Consultez un expert"
	}

	verdict := "✓ Diagnostic fiable. Un expert validera sous 24h."
	if rec.RequiresExpert {
		verdict = "⚠️ Un expert va vérifier cette analyse pour confirmer."
	}

	return "🔬 ANALYSE IA LOCALE DÉTECTÉE\n\n" +
		fmt.Sprintf("Maladie: %s\n", disease) +
		fmt.Sprintf("Confiance: %s\n\n", confidence) +
		analysis + "\n\n" +
		fmt.Sprintf("💊 TRAITEMENT RECOMMANDÉ:\n%s\n\n", treatment) +
		verdict
}
