package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-indexer/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		archive, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, archive)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{BaseDir: "  "})
		assert.Error(t, err)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "archive", "bodies")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		dir := t.TempDir()
		// #nosec G302 -- read-only directory for the write check.
		require.NoError(t, os.Chmod(dir, 0o500))
		t.Cleanup(func() {
			// #nosec G302 -- restore so the temp dir can be removed.
			_ = os.Chmod(dir, 0o700)
		})

		_, err := local.New(local.Config{BaseDir: dir})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	dir := t.TempDir()
	archive, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("WritesNestedKey", func(t *testing.T) {
		key := "sites/s1/pages/p1.html"
		uri, err := archive.PutObject(ctx, key, "text/html", strings.NewReader("<p>hello</p>"))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.ToSlash(filepath.Join(dir, key)), uri)

		// #nosec G304 -- reads from the test temp directory.
		data, err := os.ReadFile(filepath.Join(dir, key))
		require.NoError(t, err)
		assert.Equal(t, "<p>hello</p>", string(data))
	})

	t.Run("ReplacesExistingObject", func(t *testing.T) {
		key := "sites/s1/pages/p2.txt"
		_, err := archive.PutObject(ctx, key, "text/plain", strings.NewReader("first version"))
		require.NoError(t, err)
		_, err = archive.PutObject(ctx, key, "text/plain", strings.NewReader("second"))
		require.NoError(t, err)

		// #nosec G304 -- reads from the test temp directory.
		data, err := os.ReadFile(filepath.Join(dir, key))
		require.NoError(t, err)
		assert.Equal(t, "second", string(data))

		entries, err := os.ReadDir(filepath.Join(dir, "sites", "s1", "pages"))
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasPrefix(e.Name(), ".put-"), "temp file left behind: %s", e.Name())
		}
	})

	t.Run("EmptyKey", func(t *testing.T) {
		_, err := archive.PutObject(ctx, "", "text/plain", strings.NewReader("data"))
		assert.Error(t, err)
	})

	t.Run("KeyEscapingBaseDir", func(t *testing.T) {
		_, err := archive.PutObject(ctx, "../outside.html", "text/html", strings.NewReader("data"))
		require.ErrorContains(t, err, "escapes")
		_, statErr := os.Stat(filepath.Join(filepath.Dir(dir), "outside.html"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("CanceledContext", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := archive.PutObject(canceled, "sites/s1/pages/p3.html", "text/html", strings.NewReader("data"))
		require.ErrorIs(t, err, context.Canceled)
	})
}
