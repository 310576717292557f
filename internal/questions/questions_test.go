package questions

import (
	"strings"
	"testing"

	"speakcheck-worker/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestFuse(t *testing.T) {
	tests := []struct {
		transcript string
		document   string
		expected   string
		name       string
	}{
		{
			transcript: "transcript text",
			document:   "document text",
			expected:   "transcript text\n\ndocument text",
			name:       "both parts, transcript first",
		},
		{
			transcript: "transcript text",
			document:   "",
			expected:   "transcript text",
			name:       "transcript only",
		},
		{
			transcript: "",
			document:   "document text",
			expected:   "document text",
			name:       "document only",
		},
		{
			transcript: "",
			document:   "",
			expected:   "",
			name:       "both empty",
		},
		{
			transcript: "  padded  ",
			document:   "\n\ndoc\n",
			expected:   "padded\n\ndoc",
			name:       "whitespace trimmed",
		},
		{
			transcript: "   ",
			document:   "doc",
			expected:   "doc",
			name:       "blank transcript skipped",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, Fuse(test.transcript, test.document))
		})
	}
}

func TestParseQuestions(t *testing.T) {
	t.Run("plain json array", func(t *testing.T) {
		payloads, err := parseQuestions(`[
			{"question": "발표의 핵심 주장은 무엇인가요?", "model_answer": "주장 요약"},
			{"question": "두 번째 질문", "model_answer": ""}
		]`)
		require.NoError(t, err)
		require.Len(t, payloads, 2)

		assert.Equal(t, "발표의 핵심 주장은 무엇인가요?", payloads[0].Question)
		require.NotNil(t, payloads[0].ModelAnswer)
		assert.Equal(t, "주장 요약", *payloads[0].ModelAnswer)
		assert.Nil(t, payloads[1].ModelAnswer, "blank model answer becomes nil")
	})

	t.Run("markdown fenced json", func(t *testing.T) {
		payloads, err := parseQuestions("```json\n[{\"question\": \"q\", \"model_answer\": \"a\"}]\n```")
		require.NoError(t, err)
		require.Len(t, payloads, 1)
		assert.Equal(t, "q", payloads[0].Question)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := parseQuestions("죄송하지만 질문을 생성할 수 없습니다.")
		assert.Error(t, err)
	})

	t.Run("json object instead of array", func(t *testing.T) {
		_, err := parseQuestions(`{"question": "q"}`)
		assert.Error(t, err)
	})
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `[{"a":1}]`, stripCodeFences("```json\n[{\"a\":1}]\n```"))
	assert.Equal(t, `[{"a":1}]`, stripCodeFences("```\n[{\"a\":1}]\n```"))
	assert.Equal(t, `[{"a":1}]`, stripCodeFences(`[{"a":1}]`))
	assert.Equal(t, `[{"a":1}]`, stripCodeFences("  [{\"a\":1}]  "))
}

func TestSanitize(t *testing.T) {
	answer := "  기존 답변  "
	modelAnswer := "  모범 답안  "
	blank := "   "
	tips := "tips"
	score := 80

	payloads := []models.QuestionPayload{
		{Question: "  유효한 질문  ", Answer: &answer, ModelAnswer: &modelAnswer, ImprovementTips: &tips, Score: &score},
		{Question: "", ModelAnswer: &modelAnswer},
		{Question: "   ", ModelAnswer: &modelAnswer},
		{Question: "모범 답안 없는 질문", ModelAnswer: &blank},
	}

	sanitized := Sanitize(payloads)
	require.Len(t, sanitized, 2, "blank questions dropped")

	first := sanitized[0]
	assert.Equal(t, "유효한 질문", first.Question)
	assert.Nil(t, first.Answer, "answers are never pre-filled")
	assert.Nil(t, first.ImprovementTips)
	require.NotNil(t, first.ModelAnswer)
	assert.Equal(t, "모범 답안", *first.ModelAnswer)
	require.NotNil(t, first.Score)
	assert.Equal(t, 80, *first.Score)

	assert.Nil(t, sanitized[1].ModelAnswer, "blank model answer becomes nil")
}

func TestSanitizeEmptyList(t *testing.T) {
	sanitized := Sanitize(nil)
	assert.NotNil(t, sanitized)
	assert.Empty(t, sanitized)
}

func TestBuildPrompt(t *testing.T) {
	t.Run("difficulty guide injected", func(t *testing.T) {
		prompt := buildPrompt("본문", 3, "hard")
		assert.Contains(t, prompt, difficultyGuides["hard"])
		assert.Contains(t, prompt, "3개")
		assert.Contains(t, prompt, "본문")
	})

	t.Run("unknown difficulty falls back to medium", func(t *testing.T) {
		prompt := buildPrompt("본문", 5, "extreme")
		assert.Contains(t, prompt, difficultyGuides["medium"])
	})

	t.Run("asks for a json array", func(t *testing.T) {
		prompt := buildPrompt("본문", 5, "medium")
		assert.True(t, strings.Contains(prompt, `"question"`))
		assert.True(t, strings.Contains(prompt, `"model_answer"`))
	})
}

func TestResponseText(t *testing.T) {
	t.Run("concatenates text parts of the first candidate", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{
					Content: &genai.Content{
						Parts: []*genai.Part{
							{Text: `[{"question": "Q1"`},
							nil,
							{Text: `, "model_answer": "A1"}]`},
						},
					},
				},
			},
		}

		assert.Equal(t, `[{"question": "Q1", "model_answer": "A1"}]`, responseText(resp))
	})

	t.Run("empty on missing content", func(t *testing.T) {
		assert.Equal(t, "", responseText(nil))
		assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))
		assert.Equal(t, "", responseText(&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{}},
		}))
	})
}
