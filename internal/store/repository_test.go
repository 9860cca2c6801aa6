package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosub/subtrans/internal/subtitle"
)

// buildSourceDir writes a source.srt with the given texts into a temp dir.
// An empty text produces a segment with no content.
func buildSourceDir(t *testing.T, texts []string) string {
	t.Helper()
	dir := t.TempDir()

	var b strings.Builder
	for i, text := range texts {
		fmt.Fprintf(&b, "%d\n00:00:%02d,000 --> 00:00:%02d,500\n%s\n\n", i+1, i+1, i+1, text)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "source.srt"), []byte(b.String()), 0o644))
	return dir
}

var englishLines = []string{
	"Good morning everyone.",
	"The meeting starts in five minutes.",
	"Please take your seats.",
	"We have a lot to cover today.",
	"Let us begin with the agenda.",
	"Any questions so far?",
	"Moving on to the next topic.",
	"Thank you all for coming.",
}

func TestNewRepository_SeedsLanguageTables(t *testing.T) {
	dir := buildSourceDir(t, englishLines)

	repo, err := NewRepository(dir, "source.srt", []string{"de", "es"})
	require.NoError(t, err)

	assert.Equal(t, len(englishLines), repo.Len())
	assert.Equal(t, filepath.Join(dir, "de.srt"), repo.LanguagePath("de"))

	// Seeded tables start as copies of the source.
	text, err := repo.Text(1, "de")
	require.NoError(t, err)
	assert.Equal(t, englishLines[0], text)
}

func TestNewRepository_MissingSource(t *testing.T) {
	_, err := NewRepository(t.TempDir(), "source.srt", []string{"de"})
	require.Error(t, err)
}

func TestNewRepository_ReusesMatchingExistingFile(t *testing.T) {
	dir := buildSourceDir(t, englishLines)

	repo, err := NewRepository(dir, "source.srt", []string{"de"})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateText(1, "de", "Guten Morgen zusammen."))
	require.NoError(t, repo.SaveAll())

	// A second load keeps the translated text instead of reseeding.
	reloaded, err := NewRepository(dir, "source.srt", []string{"de"})
	require.NoError(t, err)
	text, err := reloaded.Text(1, "de")
	require.NoError(t, err)
	assert.Equal(t, "Guten Morgen zusammen.", text)
}

func TestNewRepository_ReseedsOnLineCountMismatch(t *testing.T) {
	dir := buildSourceDir(t, englishLines)

	// A stale language file with a different segment count gets replaced.
	stale := &subtitle.File{Lines: []subtitle.Line{{Index: 1, Text: "stale"}}}
	require.NoError(t, subtitle.NewWriter().Write(filepath.Join(dir, "de.srt"), stale))

	repo, err := NewRepository(dir, "source.srt", []string{"de"})
	require.NoError(t, err)
	assert.Equal(t, len(englishLines), repo.Len())

	text, err := repo.Text(1, "de")
	require.NoError(t, err)
	assert.Equal(t, englishLines[0], text)
}

func TestUpdateText_Rejections(t *testing.T) {
	dir := buildSourceDir(t, englishLines)
	repo, err := NewRepository(dir, "source.srt", []string{"de"})
	require.NoError(t, err)

	assert.Error(t, repo.UpdateText(1, "de", "   "))
	assert.Error(t, repo.UpdateText(1, "fr", "bonjour"))
	assert.Error(t, repo.UpdateText(0, "de", "text"))
	assert.Error(t, repo.UpdateText(repo.Len()+1, "de", "text"))
}

func TestSourceText_OutOfRange(t *testing.T) {
	dir := buildSourceDir(t, englishLines)
	repo, err := NewRepository(dir, "source.srt", []string{"de"})
	require.NoError(t, err)

	assert.Equal(t, englishLines[2], repo.SourceText(3))
	assert.Equal(t, "", repo.SourceText(0))
	assert.Equal(t, "", repo.SourceText(repo.Len()+1))
}

func TestFailedIndices(t *testing.T) {
	texts := make([]string, len(englishLines))
	copy(texts, englishLines)
	texts[2] = "" // segment 3 has empty source text

	dir := buildSourceDir(t, texts)
	repo, err := NewRepository(dir, "source.srt", []string{"de"})
	require.NoError(t, err)

	// Translate everything except 3 (empty source), 5, and 7.
	for i := 1; i <= repo.Len(); i++ {
		if i == 3 || i == 5 || i == 7 {
			continue
		}
		require.NoError(t, repo.UpdateText(i, "de", fmt.Sprintf("Übersetzung %d", i)))
	}

	assert.Equal(t, []int{5, 7}, repo.FailedIndices())
}

func TestFailedIndices_AllTranslated(t *testing.T) {
	dir := buildSourceDir(t, englishLines)
	repo, err := NewRepository(dir, "source.srt", []string{"de"})
	require.NoError(t, err)

	for i := 1; i <= repo.Len(); i++ {
		require.NoError(t, repo.UpdateText(i, "de", fmt.Sprintf("Übersetzung %d", i)))
	}

	assert.Empty(t, repo.FailedIndices())
}

func TestSaveAll_WritesDurableFiles(t *testing.T) {
	dir := buildSourceDir(t, englishLines)
	repo, err := NewRepository(dir, "source.srt", []string{"de", "es"})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateText(2, "de", "Das Meeting beginnt in fünf Minuten."))
	require.NoError(t, repo.SaveAll())

	read, err := subtitle.NewReader(filepath.Join(dir, "de.srt")).Read()
	require.NoError(t, err)
	require.Len(t, read.Lines, len(englishLines))
	assert.Equal(t, "Das Meeting beginnt in fünf Minuten.", read.Lines[1].Text)

	_, err = os.Stat(filepath.Join(dir, "es.srt"))
	require.NoError(t, err)
}

func TestUpdateText_ConcurrentWriters(t *testing.T) {
	dir := buildSourceDir(t, englishLines)
	repo, err := NewRepository(dir, "source.srt", []string{"de"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= repo.Len(); i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			assert.NoError(t, repo.UpdateText(index, "de", fmt.Sprintf("Zeile %d", index)))
		}(i)
	}
	wg.Wait()

	require.NoError(t, repo.SaveAll())
	for i := 1; i <= repo.Len(); i++ {
		text, err := repo.Text(i, "de")
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("Zeile %d", i), text)
	}
}
