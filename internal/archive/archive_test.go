package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segdag/segdag/pkg/config"
)

func TestValidateConfig(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		err := ValidateConfig(nil)
		require.Error(t, err)
	})

	t.Run("local requires path", func(t *testing.T) {
		err := ValidateConfig(&config.ArchiveConfig{Type: "local"})
		require.Error(t, err)
	})

	t.Run("local ok", func(t *testing.T) {
		err := ValidateConfig(&config.ArchiveConfig{Type: "local", LocalPath: "./x"})
		require.NoError(t, err)
	})

	t.Run("cos requires credentials", func(t *testing.T) {
		err := ValidateConfig(&config.ArchiveConfig{Type: "cos", Bucket: "b", Region: "r"})
		require.Error(t, err)
	})

	t.Run("unsupported type", func(t *testing.T) {
		err := ValidateConfig(&config.ArchiveConfig{Type: "ftp"})
		require.Error(t, err)
	})
}

func TestNewBackendDefaultsToLocal(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBackend(&config.ArchiveConfig{Type: "local", LocalPath: dir})
	require.NoError(t, err)
	_, ok := b.(*LocalBackend)
	assert.True(t, ok)
}
