package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "ultrafast", cfg.FFmpegPreset)
		assert.Equal(t, "classic", cfg.Montage.DefaultPreset)
		assert.Equal(t, filepath.Join("assets", "watermark.png"), cfg.Montage.WatermarkPath)
		assert.Equal(t, filepath.Join("assets", "outro.mp4"), cfg.Montage.OutroPath)
		assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
		assert.False(t, cfg.IsProduction())
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("PORT", "9000")
		t.Setenv("ASSETS_DIR", "/srv/assets")
		t.Setenv("OUTRO_PATH", "/srv/custom/outro.mov")
		t.Setenv("FFMPEG_HARDWARE_ACCEL", "yes")
		t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
		t.Setenv("STORAGE_BACKEND", "s3")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.IsProduction())
		assert.Equal(t, 9000, cfg.Port)
		assert.Equal(t, "/srv/assets/watermark.png", cfg.Montage.WatermarkPath)
		assert.Equal(t, "/srv/custom/outro.mov", cfg.Montage.OutroPath)
		assert.True(t, cfg.FFmpegHardwareAccel)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
		assert.Equal(t, "s3", cfg.Storage.Backend)
	})
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("REELMIX_TEST_INT", "notanumber")
	assert.Equal(t, 7, getEnvInt("REELMIX_TEST_INT", 7))
	assert.Equal(t, int64(7), getEnvInt64("REELMIX_TEST_INT", 7))

	t.Setenv("REELMIX_TEST_BOOL", "0")
	assert.False(t, getEnvBool("REELMIX_TEST_BOOL", true))

	assert.Equal(t, "fallback", getEnv("REELMIX_TEST_UNSET", "fallback"))
}
