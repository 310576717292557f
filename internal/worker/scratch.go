package worker

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// ScratchTracker enregistre les artefacts temporaires d'un job et ne
// supprime au nettoyage que les chemins résolus SOUS une racine scratch.
// Un chemin source qui était déjà un fichier local permanent (hors scratch)
// ne sera donc jamais supprimé, même s'il a été suivi par erreur.
type ScratchTracker struct {
	roots []string
	paths []string
}

// NewScratchTracker construit un tracker confiné aux racines données.
func NewScratchTracker(roots ...string) (*ScratchTracker, error) {
	resolved := make([]string, 0, len(roots))
	for _, root := range roots {
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve scratch root %s: %w", root, err)
		}
		// Résoudre les liens symboliques de la racine comme Contains le fait
		// pour les chemins suivis; sinon une racine sous /tmp symlinké ne
		// contiendrait jamais ses propres artefacts
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			abs = real
		}
		resolved = append(resolved, abs)
	}

	if len(resolved) == 0 {
		return nil, fmt.Errorf("at least one scratch root is required")
	}

	return &ScratchTracker{roots: resolved}, nil
}

// Track enregistre un chemin candidat au nettoyage.
func (t *ScratchTracker) Track(path string) {
	if path == "" {
		return
	}
	t.paths = append(t.paths, path)
}

// Contains indique si le chemin résolu est sous une racine scratch.
func (t *ScratchTracker) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	// Résoudre les liens symboliques quand le fichier existe encore; pour un
	// fichier déjà supprimé, résoudre son répertoire parent
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	} else if realDir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(realDir, filepath.Base(abs))
	}

	for _, root := range t.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Cleanup supprime les artefacts suivis contenus dans le scratch. Les
// échecs de suppression sont journalisés, jamais propagés : le nettoyage ne
// doit pas changer l'issue du job.
func (t *ScratchTracker) Cleanup(jobID int64) {
	for _, path := range t.paths {
		if !t.Contains(path) {
			log.Printf("Job %d: skipping cleanup of non-scratch path %s", jobID, path)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Job %d: failed to remove %s: %v", jobID, path, err)
		}
	}
	t.paths = nil
}
