package undo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const journalVersion = 1

// FileJournal stores the stack as YAML so separate CLI runs share one history
type FileJournal struct {
	path string
}

func NewFileJournal(path string) *FileJournal {
	return &FileJournal{path: path}
}

type journalFile struct {
	Version int        `yaml:"version"`
	Records []envelope `yaml:"records"`
}

// envelope tags a record with its variant; exactly one pointer is set
type envelope struct {
	Kind        Kind         `yaml:"kind"`
	DeleteRefs  *DeleteRefs  `yaml:"delete_refs,omitempty"`
	DeleteLabel *DeleteLabel `yaml:"delete_label,omitempty"`
	RenameLabel *RenameLabel `yaml:"rename_label,omitempty"`
}

func wrap(r Record) (envelope, error) {
	switch rec := r.(type) {
	case *DeleteRefs:
		return envelope{Kind: KindDeleteRefs, DeleteRefs: rec}, nil
	case *DeleteLabel:
		return envelope{Kind: KindDeleteLabel, DeleteLabel: rec}, nil
	case *RenameLabel:
		return envelope{Kind: KindRenameLabel, RenameLabel: rec}, nil
	default:
		return envelope{}, fmt.Errorf("unknown undo record %T", r)
	}
}

func (e envelope) unwrap() (Record, error) {
	switch {
	case e.Kind == KindDeleteRefs && e.DeleteRefs != nil:
		return e.DeleteRefs, nil
	case e.Kind == KindDeleteLabel && e.DeleteLabel != nil:
		return e.DeleteLabel, nil
	case e.Kind == KindRenameLabel && e.RenameLabel != nil:
		return e.RenameLabel, nil
	default:
		return nil, fmt.Errorf("malformed undo record of kind %q", e.Kind)
	}
}

// Load reads the journal; a missing file is an empty history
func (j *FileJournal) Load() ([]Record, error) {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var file journalFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", j.path, err)
	}
	if file.Version != journalVersion {
		return nil, fmt.Errorf("unsupported undo journal version %d", file.Version)
	}

	records := make([]Record, 0, len(file.Records))
	for _, e := range file.Records {
		r, err := e.unwrap()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Save replaces the journal atomically
func (j *FileJournal) Save(records []Record) error {
	file := journalFile{Version: journalVersion, Records: make([]envelope, 0, len(records))}
	for _, r := range records {
		e, err := wrap(r)
		if err != nil {
			return err
		}
		file.Records = append(file.Records, e)
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("failed to marshal undo journal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, j.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
