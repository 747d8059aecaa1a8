package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "scriptmark", cfg.AppName)
	assert.Equal(t, "name-fallback", cfg.MatchPolicy)
	assert.Equal(t, 0.85, cfg.IDThreshold)
	assert.Equal(t, 0.8, cfg.NameThreshold)
	assert.Equal(t, "similarity", cfg.ScoringPolicy)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	t.Setenv("SCRIPTMARK_MATCH_POLICY", "combined")
	t.Setenv("SCRIPTMARK_BATCH_WORKERS", "8")
	t.Setenv("SCRIPTMARK_BATCH_RETRY_BACKOFF", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "combined", cfg.MatchPolicy)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoff)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown match policy", "SCRIPTMARK_MATCH_POLICY", "psychic"},
		{"threshold above one", "SCRIPTMARK_MATCH_ID_THRESHOLD", "1.5"},
		{"unknown scoring policy", "SCRIPTMARK_SCORING_POLICY", "vibes"},
		{"bad backoff", "SCRIPTMARK_BATCH_RETRY_BACKOFF", "soon"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
