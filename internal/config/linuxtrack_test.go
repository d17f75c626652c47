package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSection(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Falcon 4.0", "Falcon_4_0"},
		{"IL-2: Sturmovik", "IL_2__Sturmovik"},
		{"Rise+Fall (1999)", "Rise_Fall__1999_"},
		{"Plain", "Plain"},
		{"Über Flieger", "Über_Flieger"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeSection(tt.in), tt.in)
	}
}

func TestRegisterLinuxtrackProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".linuxtrack")
	writeFile(t, path, "[Default]\nTitle = Default\n\n[Falcon]\ntitle= falcon 4.0 \n")

	changed, err := RegisterLinuxtrackProfile(path, "Falcon 4.0")
	require.NoError(t, err)
	assert.False(t, changed, "existing title matches case-insensitively")

	changed, err = RegisterLinuxtrackProfile(path, "IL-2 Sturmovik")
	require.NoError(t, err)
	assert.True(t, changed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n[IL_2_Sturmovik]\nTitle = IL-2 Sturmovik\n")

	changed, err = RegisterLinuxtrackProfile(path, "IL-2 Sturmovik")
	require.NoError(t, err)
	assert.False(t, changed, "second registration is a no-op")
}

func TestRegisterLinuxtrackProfileMissingFile(t *testing.T) {
	_, err := RegisterLinuxtrackProfile(filepath.Join(t.TempDir(), ".linuxtrack"), "X")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
