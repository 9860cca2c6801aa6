package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	progressFilename = "progress.json"
	historyFilename  = "progress_history.json"
)

// Record is the durable progress snapshot. The progress file is overwritten
// on every save; the same record is also appended to an immutable history
// log. Nothing reads the record back automatically, resuming is an explicit
// operator decision.
type Record struct {
	LangCodes         string `json:"lang_codes"`
	LastIndex         int    `json:"last_index"`
	ModelName         string `json:"model_name"`
	TotalInputTokens  int    `json:"total_input_tokens"`
	TotalOutputTokens int    `json:"total_output_tokens"`
}

// Manager writes progress checkpoints under one directory.
type Manager struct {
	progressPath string
	historyPath  string
}

func NewManager(dir string) *Manager {
	return &Manager{
		progressPath: filepath.Join(dir, progressFilename),
		historyPath:  filepath.Join(dir, historyFilename),
	}
}

// Save overwrites the progress file and appends the record to the history
// log. Both writes use whole-file atomic replace.
func (m *Manager) Save(record Record) error {
	if err := writeJSONAtomic(m.progressPath, record); err != nil {
		return fmt.Errorf("write progress file: %w", err)
	}

	history, err := m.History()
	if err != nil {
		// A corrupt history log is not worth failing a checkpoint over;
		// start a fresh list.
		history = nil
	}
	history = append(history, record)
	if err := writeJSONAtomic(m.historyPath, history); err != nil {
		return fmt.Errorf("append history log: %w", err)
	}
	return nil
}

// Load reads the current progress file. The second return value is false
// when no checkpoint exists yet.
func (m *Manager) Load() (Record, bool, error) {
	data, err := os.ReadFile(m.progressPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, false, fmt.Errorf("invalid progress file: %w", err)
	}
	return record, true, nil
}

// History reads the append-only history log.
func (m *Manager) History() ([]Record, error) {
	data, err := os.ReadFile(m.historyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var history []Record
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("invalid history log: %w", err)
	}
	return history, nil
}

func writeJSONAtomic(path string, v any) error {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
