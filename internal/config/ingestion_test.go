package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestionConfigDefaultsFillZeroFields(t *testing.T) {
	cfg := IngestionConfig{MaxAttempts: 2}.withDefaults()

	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 10*time.Second, cfg.BackoffCap)
	assert.Equal(t, time.Hour, cfg.RunInterval)
	assert.Equal(t, 30, cfg.LookbackDays)
	assert.Equal(t, 8, cfg.MaxConcurrent)
	assert.Equal(t, 2*time.Minute, cfg.VendorCallLimit)
}

func TestValidateIngestionConfig(t *testing.T) {
	require.NoError(t, validateIngestionConfig(DefaultIngestionConfig()))

	tooManyAttempts := DefaultIngestionConfig()
	tooManyAttempts.MaxAttempts = 11
	require.Error(t, validateIngestionConfig(tooManyAttempts))

	inverted := DefaultIngestionConfig()
	inverted.BackoffBase = time.Minute
	inverted.BackoffCap = time.Second
	require.Error(t, validateIngestionConfig(inverted))
}

func TestStaticHolderAppliesDefaults(t *testing.T) {
	holder := NewStaticIngestionConfigHolder(IngestionConfig{LookbackDays: 7})

	got := holder.Get()
	assert.Equal(t, 7, got.LookbackDays)
	assert.Equal(t, 4, got.MaxAttempts)
}
