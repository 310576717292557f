package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config contient la configuration object-storage
type Config struct {
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string // bucket par défaut pour les clés nues
	Endpoint  string // endpoint personnalisé (MinIO/Garage), vide = AWS
}

// ObjectStore est l'interface object-storage consommée par le resolver.
type ObjectStore interface {
	// DownloadToFile télécharge bucket/key vers localPath (répertoires créés)
	DownloadToFile(ctx context.Context, bucket, key, localPath string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
	// ParseRef décompose une référence storage en (bucket, key). Une clé nue
	// est rattachée au bucket par défaut.
	ParseRef(ref string) (bucket, key string, err error)
}

type s3Store struct {
	client        *s3.Client
	defaultBucket string
}

// NewS3Store crée un ObjectStore sur S3 (ou compatible via Endpoint).
func NewS3Store(cfg *Config) (ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Important pour Garage/MinIO
		}
	})

	return &s3Store{
		client:        client,
		defaultBucket: cfg.Bucket,
	}, nil
}

func (s *s3Store) DownloadToFile(ctx context.Context, bucket, key, localPath string) error {
	key = strings.TrimPrefix(key, "/")

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download object %s from bucket %s: %w", key, bucket, err)
	}
	defer result.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", localPath, err)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, result.Body); err != nil {
		os.Remove(localPath) // ne pas laisser un fichier partiel
		return fmt.Errorf("failed to write object %s to %s: %w", key, localPath, err)
	}

	return nil
}

func (s *s3Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	key = strings.TrimPrefix(key, "/")

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence %s: %w", key, err)
	}

	return true, nil
}

// ParseRef accepte "s3://bucket/key", "bucket/key" et "key". Les deux
// dernières formes sont désambiguïsées par le bucket par défaut : une
// référence sans préfixe s3:// est toujours une clé du bucket par défaut,
// sauf si son premier segment est exactement ce bucket.
func (s *s3Store) ParseRef(ref string) (string, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", fmt.Errorf("empty storage reference")
	}

	if rest, ok := strings.CutPrefix(ref, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket == "" || key == "" {
			return "", "", fmt.Errorf("invalid storage reference %q: expected s3://bucket/key", ref)
		}
		return bucket, key, nil
	}

	ref = strings.TrimPrefix(ref, "/")
	if first, rest, found := strings.Cut(ref, "/"); found && first == s.defaultBucket && rest != "" {
		return s.defaultBucket, rest, nil
	}

	return s.defaultBucket, ref, nil
}
