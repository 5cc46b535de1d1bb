package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	// Blank out anything the surrounding environment may set; Load treats
	// empty values as unset.
	for _, key := range []string{"EMAIL_DOMAIN", "FACE_TOLERANCE", "FACE_GALLERY_PATH", "ACCESS_TTL", "RATE_LIMIT_PER_MIN"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "srmist.edu.in", cfg.EmailDomain)
	assert.Equal(t, 0.6, cfg.FaceTolerance)
	assert.Equal(t, "known_faces.gob", cfg.FaceGalleryPath)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EMAIL_DOMAIN", "example.edu")
	t.Setenv("FACE_TOLERANCE", "0.45")
	t.Setenv("FACE_SKIP", "true")
	t.Setenv("ACCESS_TTL", "30m")
	t.Setenv("RATE_LIMIT_PER_MIN", "60")

	cfg := Load()
	assert.Equal(t, "example.edu", cfg.EmailDomain)
	assert.Equal(t, 0.45, cfg.FaceTolerance)
	assert.True(t, cfg.FaceSkip)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 60, cfg.RateLimitPerMin)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("FACE_TOLERANCE", "loose")
	t.Setenv("ACCESS_TTL", "soon")
	t.Setenv("FACE_SKIP", "maybe")

	cfg := Load()
	assert.Equal(t, 0.6, cfg.FaceTolerance)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.False(t, cfg.FaceSkip)
}
