package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlphabeticScore(t *testing.T) {
	tests := []struct {
		text     string
		expected float64
		name     string
	}{
		{
			text:     "",
			expected: 0,
			name:     "empty text",
		},
		{
			text:     "   \n\t  ",
			expected: 0,
			name:     "whitespace only",
		},
		{
			text:     "hello",
			expected: 1.0,
			name:     "pure ascii letters",
		},
		{
			text:     "안녕하세요",
			expected: 1.0,
			name:     "pure hangul",
		},
		{
			text:     "ab12",
			expected: 0.5,
			name:     "half letters half digits",
		},
		{
			text:     "####",
			expected: 0,
			name:     "ocr garbage",
		},
		{
			text:     "안녕 hello",
			expected: 1.0,
			name:     "whitespace not counted in total",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.InDelta(t, test.expected, alphabeticScore(test.text), 1e-9)
		})
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "", cleanText(""))
	assert.Equal(t, "", cleanText("\n\n   \n"))
	assert.Equal(t, "line one\nline two", cleanText("  line one  \n\n\n  line two \n"))
}

func TestTesseractLang(t *testing.T) {
	tests := []struct {
		language string
		expected string
	}{
		{"ko", "kor+eng"},
		{"kor", "kor+eng"},
		{"ja", "jpn+eng"},
		{"zh", "chi_sim+eng"},
		{"en", "eng"},
		{"", "eng"},
		{"fr", "eng"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, tesseractLang(test.language), "language %q", test.language)
	}
}

func TestExtractDirect(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "speakcheck-extractor-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	docPath := filepath.Join(tempDir, "slides.pdf")
	require.NoError(t, os.WriteFile(docPath, []byte("%PDF-fake"), 0o644))

	t.Run("direct extraction wins when it yields text", func(t *testing.T) {
		// Simule pdftotext : deux pages séparées par form feed
		script := filepath.Join(tempDir, "fake-pdftotext.sh")
		content := "#!/bin/sh\nprintf 'page one text\\n\\fpage two text\\n'\n"
		require.NoError(t, os.WriteFile(script, []byte(content), 0o755))

		e := NewPDF(script, "false", "false")
		result, err := e.Extract(context.Background(), docPath, "ko")
		require.NoError(t, err)

		assert.Equal(t, "direct", result.Method)
		assert.Equal(t, 2, result.Pages)
		assert.Equal(t, "page one text\n\npage two text", result.Text)
	})

	t.Run("both methods failing returns empty result and error", func(t *testing.T) {
		e := NewPDF("false", "false", "false")
		result, err := e.Extract(context.Background(), docPath, "ko")

		assert.Error(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "", result.Text)
		assert.Equal(t, "none", result.Method)
	})

	t.Run("blank direct output falls through to ocr", func(t *testing.T) {
		// pdftotext "réussit" mais ne produit que du blanc
		script := filepath.Join(tempDir, "fake-blank.sh")
		require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nprintf '  \\n\\f \\n'\n"), 0o755))

		e := NewPDF(script, "false", "false")
		result, err := e.Extract(context.Background(), docPath, "ko")

		assert.Error(t, err, "ocr also fails here")
		assert.Equal(t, "none", result.Method)
	})
}
