package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "3.jpg"), []byte("jpeg"), 0o644))
	store := NewCameraStore(dir)

	data, err := store.Snapshot("3")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	data, err = store.Snapshot(" 3 ")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	_, err = store.Snapshot("4")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSnapshotRejectsBadIDs(t *testing.T) {
	store := NewCameraStore(t.TempDir())
	for _, id := range []string{"", "-1", "10", "cam", "1.5", "../3"} {
		_, err := store.Snapshot(id)
		assert.ErrorIs(t, err, ErrBadCamera, "id %q", id)
	}
}

func TestLogReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two\n"), 0o644))

	text, err := NewLogReader(path).Read()
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", text)

	_, err = NewLogReader(filepath.Join(t.TempDir(), "missing.log")).Read()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLogReaderTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("ж", MaxMessageLength+10)), 0o644))

	text, err := NewLogReader(path).Read()
	require.NoError(t, err)
	assert.Equal(t, MaxMessageLength, utf8.RuneCountInString(text))
	assert.True(t, utf8.ValidString(text))
}
