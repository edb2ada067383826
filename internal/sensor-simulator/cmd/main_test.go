package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--farm-id", "farm9", "--interval", "2s", "--outlier-rate", "0.5"}))

	f := cmd.Flags()
	farm, err := f.GetString("farm-id")
	require.NoError(t, err)
	assert.Equal(t, "farm9", farm)

	iv, err := f.GetDuration("interval")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, iv)

	rate, err := f.GetFloat64("outlier-rate")
	require.NoError(t, err)
	assert.Equal(t, 0.5, rate)
}

func TestRootCmd_RejectsNonPositiveInterval(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--interval", "0s"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--interval must be positive")
}

func TestRootCmd_RejectsOutlierRateOutOfRange(t *testing.T) {
	for _, rate := range []string{"-0.1", "1.5", "NaN"} {
		cmd := newRootCmd()
		cmd.SetArgs([]string{"--outlier-rate", rate})
		err := cmd.Execute()
		require.Error(t, err, rate)
		assert.Contains(t, err.Error(), "--outlier-rate must be in [0,1]")
	}
}
