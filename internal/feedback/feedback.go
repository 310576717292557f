package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// Limites de contexte injecté dans les prompts
const (
	maxContextChars    = 4000
	maxTranscriptChars = 6000
)

// Critères de notation du feedback de présentation, dans l'ordre de sortie
var speechScoreKeys = []string{"시선처리", "제스처", "말의 속도", "억양", "시각자료구성", "내용구성"}

// AnswerFeedback est l'évaluation d'une réponse de l'apprenant.
type AnswerFeedback struct {
	Feedback string `json:"feedback"`
	Score    *int   `json:"score"`
}

// SpeechFeedback est l'évaluation globale d'une présentation.
type SpeechFeedback struct {
	Feedback string          `json:"feedback"`
	Scores   map[string]*int `json:"scores"`
}

// Service génère du feedback côté API. Jamais appelé par le pipeline; toutes
// les erreurs dégradent vers une évaluation heuristique locale.
type Service interface {
	AnswerFeedback(ctx context.Context, question string, idealAnswer *string, userAnswer, contextText string) *AnswerFeedback
	SpeechFeedback(ctx context.Context, transcript string, documentText *string, videoSource *string) *SpeechFeedback
}

type geminiFeedback struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (Service, error) {
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

	return &geminiFeedback{
		client: client,
		model:  model,
	}, nil
}

func (f *geminiFeedback) AnswerFeedback(ctx context.Context, question string, idealAnswer *string, userAnswer, contextText string) *AnswerFeedback {
	ideal := "제공되지 않음"
	if idealAnswer != nil && strings.TrimSpace(*idealAnswer) != "" {
		ideal = *idealAnswer
	}

	prompt := fmt.Sprintf(`당신은 발표 코치입니다. 아래 정보를 참고해 학습자 답변을 평가하세요.

[질문]
%s

[이상적인 답변 요약]
%s

[맥락 텍스트]
%s

[학습자 답변]
%s

한국어 문장 3개만 출력하세요. 형식은 다음과 같습니다.
1문장: 0~100점 범위의 점수와 전체 인상 (예: "점수 82점입니다. 핵심을 대부분 짚었습니다.")
2문장: 가장 큰 강점을 한 문장으로 요약.
3문장: 가장 시급한 보완점을 한 문장으로 제시.
불릿, 별표, 추가 설명, 공백 줄을 넣지 마세요.`,
		question, ideal, truncateRunes(contextText, maxContextChars), userAnswer)

	text, err := f.generate(ctx, prompt)
	if err != nil {
		log.Printf("Answer feedback generation failed, using heuristic fallback: %v", err)
		return fallbackAnswerFeedback(idealAnswer, userAnswer)
	}

	return &AnswerFeedback{
		Feedback: text,
		Score:    extractScore(text),
	}
}

func (f *geminiFeedback) SpeechFeedback(ctx context.Context, transcript string, documentText *string, videoSource *string) *SpeechFeedback {
	doc := "없음"
	if documentText != nil && strings.TrimSpace(*documentText) != "" {
		doc = truncateRunes(*documentText, maxContextChars)
	}
	source := "미제공"
	if videoSource != nil && *videoSource != "" {
		source = *videoSource
	}
	script := truncateRunes(transcript, maxTranscriptChars)
	if script == "" {
		script = "없음"
	}

	prompt := fmt.Sprintf(`당신은 발표 코치입니다. 아래 발표 스크립트와 참고 자료(없으면 '없음'이라 명시)를 참고하여 발표 피드백을 작성하세요.

[발표 스크립트]
%s

[발표 자료]
%s

가능하다면 영상 출처도 참고하세요: %s

다음 형식의 JSON만 출력하세요 (여분 텍스트 금지):
{
  "feedback": "5~7줄로 요약된 한국어 피드백",
  "scores": {
    "시선처리": 0에서 100 사이 정수,
    "제스처": 0에서 100 사이 정수,
    "말의 속도": 0에서 100 사이 정수,
    "억양": 0에서 100 사이 정수,
    "시각자료구성": 0에서 100 사이 정수,
    "내용구성": 0에서 100 사이 정수
  }
}`, script, doc, source)

	text, err := f.generate(ctx, prompt)
	if err != nil {
		log.Printf("Speech feedback generation failed, using heuristic fallback: %v", err)
		return fallbackSpeechFeedback(transcript, documentText)
	}

	var parsed struct {
		Feedback string             `json:"feedback"`
		Scores   map[string]float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &parsed); err != nil {
		log.Printf("Speech feedback response was not valid JSON, using heuristic fallback: %v", err)
		return fallbackSpeechFeedback(transcript, documentText)
	}

	scores := make(map[string]*int, len(speechScoreKeys))
	for _, key := range speechScoreKeys {
		if v, ok := parsed.Scores[key]; ok {
			s := int(v)
			scores[key] = &s
		} else {
			scores[key] = nil
		}
	}

	return &SpeechFeedback{
		Feedback: strings.TrimSpace(parsed.Feedback),
		Scores:   scores,
	}
}

func (f *geminiFeedback) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := f.client.Models.GenerateContent(ctx, f.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no content")
	}

	return strings.TrimSpace(responseText(resp)), nil
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

// extractScore repère la ligne contenant "점수" et en extrait les chiffres,
// bornés à [0, 100].
func extractScore(text string) *int {
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, "점수") {
			continue
		}
		var digits strings.Builder
		for _, r := range line {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		if digits.Len() == 0 {
			continue
		}
		n, err := strconv.Atoi(digits.String())
		if err != nil {
			return nil
		}
		if n < 0 {
			n = 0
		}
		if n > 100 {
			n = 100
		}
		return &n
	}
	return nil
}

// fallbackAnswerFeedback note par recouvrement de tokens entre la réponse
// idéale et la réponse de l'apprenant.
func fallbackAnswerFeedback(idealAnswer *string, userAnswer string) *AnswerFeedback {
	idealTokens := tokenSet(deref(idealAnswer))
	userTokens := tokenSet(userAnswer)

	score := 0
	if len(idealTokens) > 0 {
		overlap := 0
		for token := range userTokens {
			if idealTokens[token] {
				overlap++
			}
		}
		score = overlap * 100 / len(idealTokens)
	} else if len(userTokens) > 0 {
		score = len(userTokens) * 10
		if score > 100 {
			score = 100
		}
	}

	var strength, area string
	switch {
	case score >= 70:
		strength = "핵심 키워드를 잘 언급했습니다."
		area = "현재 방향을 유지하면서 세부 근거만 보강하면 좋겠습니다."
	case score >= 30:
		strength = "답변의 방향은 파악했습니다."
		area = "핵심 용어를 더 명확히 설명해 주세요."
	default:
		strength = "뚜렷한 강점을 파악하기 어려웠습니다."
		area = "질문의 의도를 다시 확인하고 주요 개념을 언급해 주세요."
	}
	if strings.TrimSpace(userAnswer) == "" {
		area = "답변을 입력하면 피드백을 받을 수 있습니다."
	}

	verdict := "충족하지 못했습니다."
	if score >= 50 {
		verdict = "어느 정도 충족했습니다."
	}

	feedback := strings.Join([]string{
		fmt.Sprintf("점수 %d점입니다. 질문 의도를 %s", score, verdict),
		"강점은 " + strength,
		"보완할 부분은 " + area,
	}, "\n")

	return &AnswerFeedback{
		Feedback: feedback,
		Score:    &score,
	}
}

func fallbackSpeechFeedback(transcript string, documentText *string) *SpeechFeedback {
	transcriptWords := len(strings.Fields(transcript))
	docWords := len(strings.Fields(deref(documentText)))

	lines := make([]string, 0, 3)
	if transcriptWords < 200 {
		lines = append(lines, "• 전반적으로 발표 흐름이 자연스럽게 이어지도록 구성해 보세요.")
	} else {
		lines = append(lines, "• 발표 스크립트가 충분히 길어 핵심 내용을 잘 담고 있습니다.")
	}
	if docWords < 100 {
		lines = append(lines, "• 시각 자료는 핵심 메시지가 잘 드러나도록 간결하게 정리해 보세요.")
	} else {
		lines = append(lines, "• 시각 자료 분량이 충분하니 슬라이드마다 전달하고 싶은 메시지를 강조해 주세요.")
	}
	lines = append(lines, "• 중요한 메시지를 전달할 때는 목소리의 억양과 속도를 조절해 청중의 집중을 이끌어 보세요.")

	scoreOf := func(n int) *int { return &n }
	scores := map[string]*int{
		"시선처리":   scoreOf(60),
		"제스처":    scoreOf(60),
		"말의 속도":  scoreOf(60),
		"억양":     scoreOf(60),
		"시각자료구성": scoreOf(55),
		"내용구성":   scoreOf(65),
	}
	if transcriptWords >= 200 {
		scores["말의 속도"] = scoreOf(75)
		scores["내용구성"] = scoreOf(80)
	}
	if docWords >= 80 {
		scores["시각자료구성"] = scoreOf(70)
	}

	return &SpeechFeedback{
		Feedback: strings.Join(lines, "\n"),
		Scores:   scores,
	}
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range strings.Fields(strings.ToLower(s)) {
		if len(token) > 1 {
			set[token] = true
		}
	}
	return set
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}

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
