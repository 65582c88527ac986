package version

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	t.Run("should apply defaults when build vars are empty", func(t *testing.T) {
		SetBuildVars("", "", "")
		t.Cleanup(func() { SetBuildVars("", "", "") })

		info := Get()
		assert.Equal(t, DefaultVersion, info.Version)
		assert.Equal(t, DefaultCommit, info.Commit)
		assert.Equal(t, DefaultBuildTime, info.BuildTime)
		assert.True(t, info.IsDevelopment())
	})

	t.Run("should expose injected build vars", func(t *testing.T) {
		SetBuildVars("v1.2.3", "abc123", "2026-01-02T03:04:05Z")
		t.Cleanup(func() { SetBuildVars("", "", "") })

		info := Get()
		assert.Equal(t, "v1.2.3", info.Version)
		assert.False(t, info.IsDevelopment())
		assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), info.BuildTimestamp())
	})
}

func TestInfo_Write(t *testing.T) {
	info := Info{Version: "v1.2.3", Commit: "abc123", BuildTime: "2026-01-02T03:04:05Z"}

	t.Run("should write only the version in short mode", func(t *testing.T) {
		var buf strings.Builder
		require.NoError(t, info.Write(&buf, true))
		assert.Equal(t, "v1.2.3\n", buf.String())
	})

	t.Run("should write full metadata otherwise", func(t *testing.T) {
		var buf strings.Builder
		require.NoError(t, info.Write(&buf, false))
		assert.Contains(t, buf.String(), ApplicationName)
		assert.Contains(t, buf.String(), "Commit: abc123")
	})
}

func TestInfo_BuildTimestamp(t *testing.T) {
	assert.True(t, Info{BuildTime: "unknown"}.BuildTimestamp().IsZero())
	assert.True(t, Info{BuildTime: "not-a-time"}.BuildTimestamp().IsZero())
}
