package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSupportedMediaKey(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{"audio/hello.wav", true},
		{"clips/VID.MP4", true},
		{"notes.TXT", false},
		{"no-extension", false},
		{"video.mxf", true},
		{"archive.zip", false},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, IsSupportedMediaKey(c.key), "key=%s", c.key)
	}
}

func TestValidateEnginePolicy(t *testing.T) {
	good := EnginePolicy{Engine: "whisper-large", ExecutionMode: ExecutionModeStandard, ComputeThresholdSeconds: 900}
	require.NoError(t, ValidateEnginePolicy(good))

	bad := EnginePolicy{ExecutionMode: "nonsense"}
	err := ValidateEnginePolicy(bad)
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestValidateSearchLimit(t *testing.T) {
	require.NoError(t, ValidateSearchLimit(20, 0))
	require.NoError(t, ValidateSearchLimit(100, 500))
	require.Error(t, ValidateSearchLimit(0, 0))
	require.Error(t, ValidateSearchLimit(101, 0))
	require.Error(t, ValidateSearchLimit(1, -1))
}
