package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseOffset(t *testing.T) {
	loc := ParseOffset("+08:00")
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 8*3600, offset)

	loc = ParseOffset("-05:30")
	_, offset = time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, -(5*3600 + 30*60), offset)

	assert.Equal(t, time.UTC, ParseOffset(""))
	assert.Equal(t, time.UTC, ParseOffset("bogus"))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_EXPIRY_GRACE_DAYS", "0")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 3, cfg.Sessions.ExpiryGraceDays)
	assert.Equal(t, 10*time.Minute, cfg.Sessions.EndingSoonLead)
	assert.Equal(t, "08:00", cfg.Sessions.MorningBlockStart)
	assert.Equal(t, int64(5*1024*1024), cfg.Storage.MaxUploadBytes)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a , ,b "))
}
