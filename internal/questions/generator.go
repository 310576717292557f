package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"speakcheck-worker/pkg/models"

	"google.golang.org/genai"
)

// Nombre de questions demandées par défaut au générateur
const defaultNumQuestions = 5

// Guides de difficulté injectés dans le prompt (coréen, public cible)
var difficultyGuides = map[string]string{
	"easy":   "기본적인 이해를 확인하는 쉬운 질문",
	"medium": "적당한 수준의 분석과 이해를 요구하는 질문",
	"hard":   "심화된 사고와 응용을 요구하는 어려운 질문",
}

// Generator produit des questions de révision à partir d'un texte combiné.
// Les erreurs du générateur ne doivent JAMAIS faire échouer le job appelant.
type Generator interface {
	Generate(ctx context.Context, text string, numQuestions int, difficulty string) ([]models.QuestionPayload, error)
}

type geminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGemini crée un générateur adossé à l'API Gemini.
func NewGemini(ctx context.Context, apiKey, model string) (Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiGenerator{
		client: client,
		model:  model,
	}, nil
}

func (g *geminiGenerator) Generate(ctx context.Context, text string, numQuestions int, difficulty string) ([]models.QuestionPayload, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if numQuestions <= 0 {
		numQuestions = defaultNumQuestions
	}

	prompt := buildPrompt(text, numQuestions, difficulty)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no content")
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("gemini response blocked by safety filters")
	}

	payloads, err := parseQuestions(responseText(resp))
	if err != nil {
		return nil, err
	}

	sanitized := Sanitize(payloads)
	log.Printf("Question generation: %d generated, %d after sanitation", len(payloads), len(sanitized))
	return sanitized, nil
}

// responseText concatène les parties textuelles du premier candidat.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func buildPrompt(text string, numQuestions int, difficulty string) string {
	guide, ok := difficultyGuides[difficulty]
	if !ok {
		guide = difficultyGuides["medium"]
	}

	return fmt.Sprintf(`다음 텍스트를 바탕으로 %d개의 %s을 생성해주세요.

텍스트:
%s

응답은 반드시 아래 형식의 JSON 배열로만 작성해주세요. 다른 설명은 포함하지 마세요.

[
  {"question": "질문 내용", "model_answer": "모범 답안"}
]

질문은 텍스트의 핵심 내용을 다루되, 단순 암기가 아닌 이해와 사고를 요구하는 질문으로 만들어주세요.`,
		numQuestions, guide, text)
}

type rawQuestion struct {
	Question    string `json:"question"`
	ModelAnswer string `json:"model_answer"`
	Score       *int   `json:"score"`
}

// parseQuestions décode la réponse du modèle, en tolérant les clôtures
// markdown autour du JSON.
func parseQuestions(response string) ([]models.QuestionPayload, error) {
	cleaned := stripCodeFences(response)

	var raw []rawQuestion
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse generator response as JSON array: %w", err)
	}

	payloads := make([]models.QuestionPayload, 0, len(raw))
	for _, r := range raw {
		var modelAnswer *string
		if ma := strings.TrimSpace(r.ModelAnswer); ma != "" {
			modelAnswer = &ma
		}
		payloads = append(payloads, models.QuestionPayload{
			Question:    strings.TrimSpace(r.Question),
			ModelAnswer: modelAnswer,
			Score:       r.Score,
		})
	}
	return payloads, nil
}

// Sanitize applique les règles de nettoyage : questions vides supprimées,
// champs optionnels non générés remis à nil. Une liste vide après nettoyage
// signifie "pas de questions", pas une erreur.
func Sanitize(payloads []models.QuestionPayload) []models.QuestionPayload {
	sanitized := make([]models.QuestionPayload, 0, len(payloads))
	for _, p := range payloads {
		question := strings.TrimSpace(p.Question)
		if question == "" {
			continue
		}

		var modelAnswer *string
		if p.ModelAnswer != nil {
			if ma := strings.TrimSpace(*p.ModelAnswer); ma != "" {
				modelAnswer = &ma
			}
		}

		sanitized = append(sanitized, models.QuestionPayload{
			Question:        question,
			Answer:          nil,
			ModelAnswer:     modelAnswer,
			ImprovementTips: nil,
			Score:           p.Score,
		})
	}
	return sanitized
}

// stripCodeFences retire une clôture ```json ... ``` éventuelle.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
