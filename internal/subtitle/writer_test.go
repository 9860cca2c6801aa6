package subtitle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_RoundTrip(t *testing.T) {
	file := &File{
		Format: "SRT",
		Lines: []Line{
			{Index: 1, StartTime: time.Second, EndTime: 2 * time.Second, Text: "First"},
			{Index: 2, StartTime: 3 * time.Second, EndTime: 4500 * time.Millisecond, Text: "Second\nline"},
		},
	}

	path := filepath.Join(t.TempDir(), "out.srt")
	require.NoError(t, NewWriter().Write(path, file))

	read, err := NewReader(path).Read()
	require.NoError(t, err)
	require.Len(t, read.Lines, 2)
	assert.Equal(t, file.Lines[0], read.Lines[0])
	assert.Equal(t, file.Lines[1], read.Lines[1])
}

func TestWriter_OverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")
	require.NoError(t, os.WriteFile(path, []byte("stale content"), 0o644))

	file := &File{Lines: []Line{{Index: 1, EndTime: time.Second, Text: "fresh"}}}
	require.NoError(t, NewWriter().Write(path, file))

	read, err := NewReader(path).Read()
	require.NoError(t, err)
	require.Len(t, read.Lines, 1)
	assert.Equal(t, "fresh", read.Lines[0].Text)
}

func TestWriter_NilFile(t *testing.T) {
	err := NewWriter().Write(filepath.Join(t.TempDir(), "out.srt"), nil)
	require.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	d := time.Hour + 2*time.Minute + 16*time.Second + 612*time.Millisecond
	assert.Equal(t, "01:02:16,612", formatDuration(d))
	assert.Equal(t, "00:00:00,000", formatDuration(0))
}
