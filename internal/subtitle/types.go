package subtitle

import (
	"time"

	"golang.org/x/text/language"
)

// Reader is the interface for reading subtitle files.
type Reader interface {
	Read() (*File, error)
}

// Writer is the interface for writing subtitle files.
type Writer interface {
	Write(path string, subtitle *File) error
}

// Line represents a single subtitle line.
type Line struct {
	Index     int           // subtitle index
	StartTime time.Duration // start time
	EndTime   time.Duration // end time
	Text      string        // subtitle text
}

// File represents a parsed subtitle file.
type File struct {
	Lines    []Line
	Language language.Tag
	Format   string // e.g. SRT
	Path     string
}

// Clone returns a deep copy of the file. Used to seed a new language table
// from the source template.
func (f *File) Clone() *File {
	lines := make([]Line, len(f.Lines))
	copy(lines, f.Lines)
	return &File{
		Lines:    lines,
		Language: f.Language,
		Format:   f.Format,
		Path:     f.Path,
	}
}
