package storage

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jokernotes/internal/config"
)

func newTestStore(t *testing.T, cfg config.MinIOConfig) *MinIOCoverStore {
	t.Helper()
	s, err := newCoverStore(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestCoverStore_Contains(t *testing.T) {
	s := newTestStore(t, config.MinIOConfig{Endpoint: "localhost:9000", Bucket: "covers"})

	assert.True(t, s.Contains("http://localhost:9000/covers/covers/u1/d1-1.png"))
	assert.False(t, s.Contains("http://localhost:9000/covers/"))
	assert.False(t, s.Contains("http://localhost:9000/covers/covers/u1/../u2/d1-1.png"))
	assert.False(t, s.Contains("https://images.example.com/cat.png"))
	assert.False(t, s.Contains(""))
}

func TestCoverStore_OwnedBy(t *testing.T) {
	s := newTestStore(t, config.MinIOConfig{Endpoint: "localhost:9000", Bucket: "covers"})
	base := "http://localhost:9000/covers/"
	key := CoverKey("user-a", "d1", "a.png", time.Unix(0, 1))

	tests := []struct {
		name  string
		ref   string
		owner string
		want  bool
	}{
		{"own upload", base + key, "user-a", true},
		{"another user's upload", base + key, "user-b", false},
		{"owner id is a prefix of another", base + key, "user", false},
		{"escaped owner", base + CoverKey("u/1", "d1", "a.png", time.Unix(0, 1)), "u/1", true},
		{"dot segments", base + "covers/user-b/../user-a/d1-1.png", "user-b", false},
		{"outside the bucket", "https://images.example.com/covers/user-a/x.png", "user-a", false},
		{"empty owner", base + key, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.OwnedBy(tt.ref, tt.owner))
		})
	}
}

func TestCoverStore_PublicURL(t *testing.T) {
	s := newTestStore(t, config.MinIOConfig{
		Endpoint:  "minio:9000",
		Bucket:    "covers",
		UseSSL:    true,
		PublicURL: "https://cdn.example.com/",
	})

	assert.Equal(t, "https://cdn.example.com/covers/", s.baseURL)
	assert.True(t, s.Contains("https://cdn.example.com/covers/a.png"))
	assert.False(t, s.Contains("https://minio:9000/covers/a.png"))
}

func TestCoverKey(t *testing.T) {
	now := time.Unix(0, 42)
	assert.Equal(t, "covers/u1/d1-42.png", CoverKey("u1", "d1", "Photo.PNG", now))
	assert.Equal(t, "covers/u%2F1/d1-42", CoverKey("u/1", "d1", "noext", now))
}
