package feedback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestExtractScore(t *testing.T) {
	tests := []struct {
		text     string
		expected *int
		name     string
	}{
		{
			text:     "점수 82점입니다. 핵심을 대부분 짚었습니다.",
			expected: intPtr(82),
			name:     "score in the first line",
		},
		{
			text:     "전반적으로 좋았습니다.\n점수는 45점 정도입니다.",
			expected: intPtr(45),
			name:     "score in a later line",
		},
		{
			text:     "점수 150점입니다.",
			expected: intPtr(100),
			name:     "clamped to 100",
		},
		{
			text:     "점수를 매기기 어렵습니다.",
			expected: nil,
			name:     "score keyword without digits",
		},
		{
			text:     "좋은 답변이었습니다.",
			expected: nil,
			name:     "no score keyword",
		},
		{
			text:     "",
			expected: nil,
			name:     "empty text",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := extractScore(test.text)
			if test.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *test.expected, *got)
		})
	}
}

func TestFallbackAnswerFeedback(t *testing.T) {
	t.Run("full overlap scores 100", func(t *testing.T) {
		ideal := "발표 핵심 주장"
		fb := fallbackAnswerFeedback(&ideal, "발표 핵심 주장")

		require.NotNil(t, fb.Score)
		assert.Equal(t, 100, *fb.Score)
		assert.Contains(t, fb.Feedback, "점수 100점")
	})

	t.Run("partial overlap", func(t *testing.T) {
		ideal := "발표 핵심 주장 요약"
		fb := fallbackAnswerFeedback(&ideal, "핵심 주장")

		require.NotNil(t, fb.Score)
		assert.Equal(t, 50, *fb.Score)
	})

	t.Run("no ideal answer scores by answer length", func(t *testing.T) {
		fb := fallbackAnswerFeedback(nil, "세 단어 답변")

		require.NotNil(t, fb.Score)
		assert.Equal(t, 30, *fb.Score)
	})

	t.Run("empty answer scores zero", func(t *testing.T) {
		ideal := "핵심 주장"
		fb := fallbackAnswerFeedback(&ideal, "")

		require.NotNil(t, fb.Score)
		assert.Equal(t, 0, *fb.Score)
		assert.Contains(t, fb.Feedback, "답변을 입력하면")
	})

	t.Run("feedback has three lines", func(t *testing.T) {
		ideal := "핵심"
		fb := fallbackAnswerFeedback(&ideal, "아무말")
		assert.Len(t, strings.Split(fb.Feedback, "\n"), 3)
	})
}

func TestFallbackSpeechFeedback(t *testing.T) {
	t.Run("short transcript keeps base scores", func(t *testing.T) {
		fb := fallbackSpeechFeedback("짧은 발표", nil)

		for _, key := range speechScoreKeys {
			require.Contains(t, fb.Scores, key)
			require.NotNil(t, fb.Scores[key], "score for %s", key)
		}
		assert.Equal(t, 60, *fb.Scores["말의 속도"])
		assert.Equal(t, 65, *fb.Scores["내용구성"])
		assert.Equal(t, 55, *fb.Scores["시각자료구성"])
	})

	t.Run("long transcript raises pacing and structure", func(t *testing.T) {
		transcript := strings.Repeat("단어 ", 250)
		fb := fallbackSpeechFeedback(transcript, nil)

		assert.Equal(t, 75, *fb.Scores["말의 속도"])
		assert.Equal(t, 80, *fb.Scores["내용구성"])
	})

	t.Run("substantial document raises visuals", func(t *testing.T) {
		doc := strings.Repeat("슬라이드 ", 100)
		fb := fallbackSpeechFeedback("발표", &doc)

		assert.Equal(t, 70, *fb.Scores["시각자료구성"])
	})

	t.Run("feedback is non-empty korean prose", func(t *testing.T) {
		fb := fallbackSpeechFeedback("발표", nil)
		assert.NotEmpty(t, fb.Feedback)
	})
}

func TestTokenSet(t *testing.T) {
	set := tokenSet("Hello WORLD a 안녕")
	assert.True(t, set["hello"])
	assert.True(t, set["world"])
	assert.True(t, set["안녕"])
	assert.False(t, set["a"], "single byte tokens dropped")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "안녕하", truncateRunes("안녕하세요", 3))
	assert.Equal(t, "", truncateRunes("", 5))
}

func intPtr(n int) *int {
	return &n
}

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Parts: []*genai.Part{
						{Text: "점수 90점입니다. "},
						nil,
						{Text: "훌륭한 답변입니다."},
					},
				},
			},
		},
	}

	assert.Equal(t, "점수 90점입니다. 훌륭한 답변입니다.", responseText(resp))
	assert.Equal(t, "", responseText(nil))
	assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))
}
