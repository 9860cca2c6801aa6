package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kosub/subtrans/internal/subtitle"
	"github.com/kosub/subtrans/pkg/log"
)

// Repository manages the source subtitle table and one table per target
// language. The source table is immutable after load; language tables are
// mutated by persistence stages running on worker goroutines, so every
// read/write/save of them is serialized behind one lock.
type Repository struct {
	dir        string
	langCodes  []string
	source     *subtitle.File
	sourceCode string

	mu    sync.Mutex
	langs map[string]*subtitle.File

	writer subtitle.Writer
}

// NewRepository loads the source subtitle file and initializes a table for
// every language code. Existing per-language files are reused; missing ones
// are seeded from the source template. A source load failure is fatal.
func NewRepository(dir string, sourceName string, langCodes []string) (*Repository, error) {
	sourcePath := filepath.Join(dir, sourceName)
	source, err := subtitle.NewReader(sourcePath).Read()
	if err != nil {
		return nil, fmt.Errorf("failed to load source subtitles: %w", err)
	}
	if len(source.Lines) == 0 {
		return nil, fmt.Errorf("source subtitle file %s has no lines", sourcePath)
	}

	r := &Repository{
		dir:        dir,
		langCodes:  langCodes,
		source:     source,
		sourceCode: source.Language.String(),
		langs:      make(map[string]*subtitle.File, len(langCodes)),
		writer:     subtitle.NewWriter(),
	}

	for _, code := range langCodes {
		langPath := r.LanguagePath(code)
		if _, err := os.Stat(langPath); err == nil {
			file, err := subtitle.NewReader(langPath).Read()
			if err == nil && len(file.Lines) == len(source.Lines) {
				r.langs[code] = file
				log.Info("Loaded existing subtitles: %s", code)
				continue
			}
			log.Error("Failed to reuse %s subtitles (%v), reseeding from source", code, err)
		}
		seeded := source.Clone()
		seeded.Path = langPath
		r.langs[code] = seeded
		log.Info("Created new subtitles from source template: %s", code)
	}

	return r, nil
}

// LanguagePath returns the durable file path for a language table.
func (r *Repository) LanguagePath(langCode string) string {
	return filepath.Join(r.dir, langCode+".srt")
}

// SourcePath returns the path the source table was loaded from.
func (r *Repository) SourcePath() string {
	return r.source.Path
}

// Len returns the number of segments.
func (r *Repository) Len() int {
	return len(r.source.Lines)
}

// SourceLanguage returns the detected ISO code of the source table.
func (r *Repository) SourceLanguage() string {
	return r.sourceCode
}

// SourceText returns the source text at a 1-based index, or "" when the
// index is out of range.
func (r *Repository) SourceText(index int) string {
	if index < 1 || index > len(r.source.Lines) {
		return ""
	}
	return r.source.Lines[index-1].Text
}

// UpdateText writes translated text into the table for langCode at a 1-based
// index. Empty text, unknown languages, and out-of-range indices are
// rejected.
func (r *Repository) UpdateText(index int, langCode string, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty text for %s at index %d", langCode, index)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.langs[langCode]
	if !ok {
		return fmt.Errorf("unknown language %q", langCode)
	}
	if index < 1 || index > len(file.Lines) {
		return fmt.Errorf("index %d out of range [1, %d]", index, len(file.Lines))
	}

	file.Lines[index-1].Text = text
	return nil
}

// Text returns the current text for langCode at a 1-based index.
func (r *Repository) Text(index int, langCode string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, ok := r.langs[langCode]
	if !ok {
		return "", fmt.Errorf("unknown language %q", langCode)
	}
	if index < 1 || index > len(file.Lines) {
		return "", fmt.Errorf("index %d out of range [1, %d]", index, len(file.Lines))
	}
	return file.Lines[index-1].Text, nil
}

// SaveAll flushes every language table to its durable file. The snapshot is
// taken under the store lock so concurrent writers never observe a torn save.
func (r *Repository) SaveAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	saved := 0
	for _, code := range r.langCodes {
		file := r.langs[code]
		if err := r.writer.Write(r.LanguagePath(code), file); err != nil {
			errs = append(errs, fmt.Errorf("save %s.srt: %w", code, err))
			continue
		}
		saved++
	}

	log.Info("Subtitle files saved: %d succeeded, %d failed", saved, len(errs))
	return errors.Join(errs...)
}

// FailedIndices scans every non-source language table for segments whose
// text is empty or byte-identical to the source text, both signs that a
// translation never took effect. Segments with empty source text are skipped.
// Returned indices are 1-based and ascending.
func (r *Repository) FailedIndices() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed []int
	for i, srcLine := range r.source.Lines {
		srcText := strings.TrimSpace(srcLine.Text)
		if srcText == "" {
			continue
		}

		for _, code := range r.langCodes {
			if code == r.sourceCode {
				continue
			}
			file, ok := r.langs[code]
			if !ok {
				continue
			}
			text := strings.TrimSpace(file.Lines[i].Text)
			if text == "" || text == srcText {
				failed = append(failed, i+1)
				break
			}
		}
	}

	return failed
}
