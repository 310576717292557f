package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Configurations de segmentation de page essayées par l'OCR, dans l'ordre.
// Le meilleur résultat par page est retenu.
var ocrPageSegModes = []string{"6", "3", "4", "1"}

const ocrDPI = "300"

// Result est la sortie de l'extraction de texte d'un document.
type Result struct {
	Text   string `json:"text"`
	Method string `json:"method"` // "direct" ou "ocr"
	Pages  int    `json:"pages"`
}

// Extractor extrait le texte d'un document PDF, en privilégiant l'extraction
// directe et en repliant sur l'OCR quand elle ne produit rien.
type Extractor interface {
	Extract(ctx context.Context, documentPath, language string) (*Result, error)
}

type pdfExtractor struct {
	pdfToTextCommand string
	pdfToPpmCommand  string
	tesseractCommand string
}

func NewPDF(pdfToTextCommand, pdfToPpmCommand, tesseractCommand string) Extractor {
	return &pdfExtractor{
		pdfToTextCommand: pdfToTextCommand,
		pdfToPpmCommand:  pdfToPpmCommand,
		tesseractCommand: tesseractCommand,
	}
}

func (e *pdfExtractor) Extract(ctx context.Context, documentPath, language string) (*Result, error) {
	direct, directErr := e.extractDirect(ctx, documentPath)
	if directErr == nil && strings.TrimSpace(direct.Text) != "" {
		log.Printf("Document %s: direct extraction succeeded (%d pages)", filepath.Base(documentPath), direct.Pages)
		return direct, nil
	}

	log.Printf("Document %s: direct extraction yielded nothing, falling back to OCR", filepath.Base(documentPath))

	ocr, ocrErr := e.extractOCR(ctx, documentPath, language)
	if ocrErr == nil {
		return ocr, nil
	}

	// Les deux méthodes ont échoué : texte vide + erreur, au choix de
	// l'appelant de dégrader plutôt que d'échouer le job
	return &Result{Text: "", Method: "none"},
		fmt.Errorf("document extraction failed (direct: %v, ocr: %v)", directErr, ocrErr)
}

// extractDirect tire le texte page par page via pdftotext. Les pages sont
// séparées par form feed dans la sortie.
func (e *pdfExtractor) extractDirect(ctx context.Context, documentPath string) (*Result, error) {
	cmd := exec.CommandContext(ctx, e.pdfToTextCommand,
		"-enc", "UTF-8",
		documentPath,
		"-", // stdout
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	rawPages := strings.Split(stdout.String(), "\f")

	var pages []string
	for _, raw := range rawPages {
		cleaned := cleanText(raw)
		if cleaned != "" {
			pages = append(pages, cleaned)
		}
	}

	return &Result{
		Text:   strings.Join(pages, "\n\n"),
		Method: "direct",
		Pages:  len(rawPages),
	}, nil
}

// extractOCR rend chaque page en image, la prétraite, puis vote entre
// plusieurs modes de segmentation tesseract.
func (e *pdfExtractor) extractOCR(ctx context.Context, documentPath, language string) (*Result, error) {
	workDir, err := os.MkdirTemp("", "speakcheck-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Rendu des pages en PNG à 300 DPI
	pagePrefix := filepath.Join(workDir, "page")
	cmd := exec.CommandContext(ctx, e.pdfToPpmCommand,
		"-r", ocrDPI,
		"-png",
		documentPath,
		pagePrefix,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	pageFiles, err := filepath.Glob(pagePrefix + "*.png")
	if err != nil || len(pageFiles) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no page images for %s", documentPath)
	}
	sort.Strings(pageFiles)

	lang := tesseractLang(language)

	var pages []string
	for i, pageFile := range pageFiles {
		processedFile, err := e.preprocessPage(pageFile)
		if err != nil {
			// Prétraitement raté : OCR sur l'image brute
			log.Printf("OCR preprocessing failed for page %d: %v", i+1, err)
			processedFile = pageFile
		}

		text := e.ocrPageWithVoting(ctx, processedFile, lang)
		cleaned := cleanText(text)
		if cleaned != "" {
			pages = append(pages, cleaned)
		}
	}

	return &Result{
		Text:   strings.Join(pages, "\n\n"),
		Method: "ocr",
		Pages:  len(pageFiles),
	}, nil
}

// ocrPageWithVoting essaie chaque mode de segmentation et garde la sortie au
// meilleur score alphabétique.
func (e *pdfExtractor) ocrPageWithVoting(ctx context.Context, imagePath, lang string) string {
	var bestText string
	var bestScore float64

	for _, psm := range ocrPageSegModes {
		cmd := exec.CommandContext(ctx, e.tesseractCommand,
			imagePath,
			"stdout",
			"-l", lang,
			"--oem", "3",
			"--psm", psm,
		)

		var stdout bytes.Buffer
		cmd.Stdout = &stdout
		if err := cmd.Run(); err != nil {
			continue
		}

		text := stdout.String()
		score := alphabeticScore(text)
		if score > bestScore {
			bestScore = score
			bestText = text
		}
	}

	return bestText
}

// preprocessPage applique la chaîne de prétraitement et écrit le résultat à
// côté de l'image source.
func (e *pdfExtractor) preprocessPage(imagePath string) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", imagePath, err)
	}

	processed := preprocessForOCR(img)

	outPath := strings.TrimSuffix(imagePath, ".png") + "_processed.png"
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if err := png.Encode(out, processed); err != nil {
		return "", fmt.Errorf("failed to encode processed page: %w", err)
	}

	return outPath, nil
}

// alphabeticScore mesure la qualité d'une sortie OCR : fraction de
// caractères Hangul ou lettres ASCII parmi les caractères non blancs.
func alphabeticScore(text string) float64 {
	var alphabetic, total int
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			continue
		}
		total++
		if (r >= '가' && r <= '힣') ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			alphabetic++
		}
	}

	if total == 0 {
		return 0
	}
	return float64(alphabetic) / float64(total)
}

// tesseractLang convertit le code langue du job en pack de langues tesseract.
func tesseractLang(language string) string {
	switch language {
	case "ko", "kor":
		return "kor+eng"
	case "ja", "jpn":
		return "jpn+eng"
	case "zh", "chi":
		return "chi_sim+eng"
	case "en", "eng", "":
		return "eng"
	default:
		return "eng"
	}
}

// cleanText retire les lignes vides et les espaces de bord.
func cleanText(text string) string {
	var cleaned []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
