package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"speakcheck-worker/internal/storage"
)

// ErrUnsupportedSource indique une référence qu'aucun tier ne sait résoudre.
var ErrUnsupportedSource = errors.New("unsupported source reference")

// ErrUnsupportedDocument indique une extension de document refusée avant
// toute tentative réseau.
var ErrUnsupportedDocument = errors.New("unsupported document extension")

// Extensions de documents acceptées par le pipeline d'extraction
var supportedDocumentExts = map[string]bool{
	".pdf": true,
}

// Resolver matérialise une référence source (chemin local, URL HTTP(S) ou
// clé object-storage) en fichier local.
type Resolver interface {
	// ResolveMedia retourne un chemin local pour la source vidéo du job.
	ResolveMedia(ctx context.Context, ref string, jobID int64) (string, error)
	// ResolveDocument fait de même pour un document, en rejetant les
	// extensions non supportées avant tout appel réseau.
	ResolveDocument(ctx context.Context, ref string, jobID int64) (string, error)
}

// Config regroupe les dépendances externes du resolver
type Config struct {
	DownloadsDir    string
	YTDLPCommand    string
	DownloadTimeout time.Duration
}

type sourceResolver struct {
	cfg        Config
	store      storage.ObjectStore
	httpClient *http.Client
}

func New(cfg Config, store storage.ObjectStore) Resolver {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 10 * time.Minute
	}
	return &sourceResolver{
		cfg:   cfg,
		store: store,
		httpClient: &http.Client{
			Timeout: cfg.DownloadTimeout,
		},
	}
}

func (r *sourceResolver) ResolveMedia(ctx context.Context, ref string, jobID int64) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrUnsupportedSource)
	}

	// Tier (a) : chemin local existant, retourné tel quel. Le fichier
	// n'appartient pas au scratch et ne sera jamais nettoyé.
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		log.Printf("Job %d: source is an existing local file: %s", jobID, ref)
		return ref, nil
	}

	// Tier (b) : URL HTTP(S) — yt-dlp d'abord, téléchargement direct en repli
	if isHTTPURL(ref) {
		path, err := r.resolveWebVideo(ctx, ref, jobID)
		if err == nil {
			return path, nil
		}
		log.Printf("Job %d: web-video extraction failed (%v), falling back to direct download", jobID, err)
		return r.downloadHTTP(ctx, ref, jobID)
	}

	// Tier (c) : référence object-storage
	return r.downloadFromStorage(ctx, ref, jobID)
}

func (r *sourceResolver) ResolveDocument(ctx context.Context, ref string, jobID int64) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrUnsupportedSource)
	}

	// Contrôle d'extension AVANT tout appel réseau
	ext := strings.ToLower(filepath.Ext(stripQuery(ref)))
	if !supportedDocumentExts[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDocument, ext)
	}

	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return ref, nil
	}

	if isHTTPURL(ref) {
		return r.downloadHTTP(ctx, ref, jobID)
	}

	return r.downloadFromStorage(ctx, ref, jobID)
}

// resolveWebVideo extrait la meilleure piste audio/vidéo d'une page
// d'hébergement via yt-dlp, vers un fichier nommé par l'id du job.
func (r *sourceResolver) resolveWebVideo(ctx context.Context, ref string, jobID int64) (string, error) {
	if err := os.MkdirAll(r.cfg.DownloadsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create downloads directory: %w", err)
	}

	// L'extension finale dépend du format choisi par yt-dlp; on récupère le
	// fichier par glob sur le préfixe du job.
	prefix := fmt.Sprintf("job_%d_video", jobID)
	outputTemplate := filepath.Join(r.cfg.DownloadsDir, prefix+".%(ext)s")

	if existing, err := filepath.Glob(filepath.Join(r.cfg.DownloadsDir, prefix+".*")); err == nil && len(existing) > 0 {
		log.Printf("Job %d: reusing previously downloaded video %s", jobID, existing[0])
		return existing[0], nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.DownloadTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.YTDLPCommand,
		"--no-playlist",
		"-f", "best",
		"-o", outputTemplate,
		ref,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w: %s", err, truncateOutput(output))
	}

	matches, err := filepath.Glob(filepath.Join(r.cfg.DownloadsDir, prefix+".*"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("yt-dlp produced no output file for job %d", jobID)
	}

	log.Printf("Job %d: web video downloaded to %s", jobID, matches[0])
	return matches[0], nil
}

// downloadHTTP est le repli générique : GET en streaming vers un fichier
// préfixé par l'id du job.
func (r *sourceResolver) downloadHTTP(ctx context.Context, ref string, jobID int64) (string, error) {
	target := r.localTarget(jobID, filepath.Base(stripQuery(ref)))

	// Re-résolution idempotente
	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		log.Printf("Job %d: reusing previously downloaded file %s", jobID, target)
		return target, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", fmt.Errorf("invalid source URL %q: %w", ref, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download %s: unexpected status %d", ref, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create downloads directory: %w", err)
	}

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(target) // ne pas laisser un fichier partiel
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}

	log.Printf("Job %d: downloaded %s to %s", jobID, ref, target)
	return target, nil
}

// downloadFromStorage télécharge une référence bucket/key (ou clé nue contre
// le bucket par défaut) vers un chemin local préfixé par l'id du job.
func (r *sourceResolver) downloadFromStorage(ctx context.Context, ref string, jobID int64) (string, error) {
	bucket, key, err := r.store.ParseRef(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}

	target := r.localTarget(jobID, filepath.Base(key))

	// Re-résolution idempotente : sauter le téléchargement si déjà présent
	if info, statErr := os.Stat(target); statErr == nil && info.Size() > 0 {
		log.Printf("Job %d: reusing previously downloaded object %s", jobID, target)
		return target, nil
	}

	if err := r.store.DownloadToFile(ctx, bucket, key, target); err != nil {
		return "", fmt.Errorf("failed to resolve storage reference %q: %w", ref, err)
	}

	log.Printf("Job %d: object %s/%s downloaded to %s", jobID, bucket, key, target)
	return target, nil
}

func (r *sourceResolver) localTarget(jobID int64, filename string) string {
	if filename == "" || filename == "." || filename == "/" {
		filename = "source"
	}
	return filepath.Join(r.cfg.DownloadsDir, fmt.Sprintf("job_%d_%s", jobID, filename))
}

func isHTTPURL(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func stripQuery(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}

func truncateOutput(output []byte) string {
	const max = 512
	s := strings.TrimSpace(string(output))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
