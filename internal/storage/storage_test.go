package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	store := &s3Store{defaultBucket: "speakcheck"}

	tests := []struct {
		ref     string
		bucket  string
		key     string
		wantErr bool
		name    string
	}{
		{
			ref:    "s3://media/videos/lecture.mp4",
			bucket: "media",
			key:    "videos/lecture.mp4",
			name:   "explicit s3 url",
		},
		{
			ref:    "videos/lecture.mp4",
			bucket: "speakcheck",
			key:    "videos/lecture.mp4",
			name:   "bare key goes to default bucket",
		},
		{
			ref:    "speakcheck/videos/lecture.mp4",
			bucket: "speakcheck",
			key:    "videos/lecture.mp4",
			name:   "default bucket prefix is stripped",
		},
		{
			ref:    "other/videos/lecture.mp4",
			bucket: "speakcheck",
			key:    "other/videos/lecture.mp4",
			name:   "foreign prefix stays part of the key",
		},
		{
			ref:    "/videos/lecture.mp4",
			bucket: "speakcheck",
			key:    "videos/lecture.mp4",
			name:   "leading slash trimmed",
		},
		{
			ref:     "",
			wantErr: true,
			name:    "empty reference",
		},
		{
			ref:     "s3://bucket-only",
			wantErr: true,
			name:    "s3 url without key",
		},
		{
			ref:     "s3:///key-only",
			wantErr: true,
			name:    "s3 url without bucket",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			bucket, key, err := store.ParseRef(test.ref)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.bucket, bucket)
			assert.Equal(t, test.key, key)
		})
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(&Config{Region: "us-east-1"})
	assert.Error(t, err)
}
