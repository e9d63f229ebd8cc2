package mailbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	id, err := w.Write("t1", "karou", "shogun", "sub", "A")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entries, err := os.ReadDir(filepath.Join(dir, "karou", "from", "shogun"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, filepathHasSuffixMd(entries[0].Name()))

	body, err := os.ReadFile(filepath.Join(dir, "karou", "from", "shogun", entries[0].Name()))
	require.NoError(t, err)
	require.Equal(t, "A", string(body))

	// No leftover temp files.
	for _, e := range entries {
		require.False(t, len(e.Name()) > 4 && e.Name()[:5] == ".tmp-")
	}
}

func filepathHasSuffixMd(name string) bool {
	return len(name) > 3 && name[len(name)-3:] == ".md"
}

func TestWriterUniqueRandPerCall(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	id1, err := w.Write("t1", "karou", "shogun", "sub", "A")
	require.NoError(t, err)
	id2, err := w.Write("t1", "karou", "shogun", "sub", "B")
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}
