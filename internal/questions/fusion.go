package questions

import "strings"

// Fuse concatène transcript et texte document avec un séparateur net, en
// sautant les parties vides. Ordre : transcript puis document.
func Fuse(transcript, documentText string) string {
	var parts []string
	if t := strings.TrimSpace(transcript); t != "" {
		parts = append(parts, t)
	}
	if d := strings.TrimSpace(documentText); d != "" {
		parts = append(parts, d)
	}
	return strings.Join(parts, "\n\n")
}
