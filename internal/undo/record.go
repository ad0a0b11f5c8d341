// Package undo holds the reversible record of destructive label operations.
package undo

import (
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-sorter/internal/trash"
)

var (
	// ErrEmpty is returned when there is nothing to undo
	ErrEmpty = errors.New("nothing to undo")
	// ErrNotRevertible is returned for records whose data cannot be restored
	ErrNotRevertible = errors.New("action cannot be undone")
)

// Kind names a record variant
type Kind string

const (
	KindDeleteRefs  Kind = "delete_refs"
	KindDeleteLabel Kind = "delete_label"
	KindRenameLabel Kind = "rename_label"
)

// Record is one executed destructive action. The set of implementations is
// closed: *DeleteRefs, *DeleteLabel and *RenameLabel.
type Record interface {
	Kind() Kind
	// Labels returns the labels whose cache entry the revert affects
	Labels() []string
	Summary() string
	When() time.Time
	record()
}

// RefBackup is one soft-deleted reference
type RefBackup struct {
	Path   string       `yaml:"path"`
	Backup trash.Backup `yaml:"backup"`
}

// DeleteRefs removed some references of a label
type DeleteRefs struct {
	Label     string      `yaml:"label"`
	Items     []RefBackup `yaml:"items"`
	CreatedAt time.Time   `yaml:"created_at"`
}

func (r *DeleteRefs) Kind() Kind       { return KindDeleteRefs }
func (r *DeleteRefs) Labels() []string { return []string{r.Label} }
func (r *DeleteRefs) When() time.Time  { return r.CreatedAt }
func (r *DeleteRefs) record()          {}

func (r *DeleteRefs) Summary() string {
	return fmt.Sprintf("delete %d reference(s) of %q", len(r.Items), r.Label)
}

// DeleteLabel removed a label, its folder and its references. Outside holds
// references stored outside the folder, which were trashed one by one.
type DeleteLabel struct {
	Label     string       `yaml:"label"`
	Folder    string       `yaml:"folder"`
	Threshold float64      `yaml:"threshold"`
	Backup    trash.Backup `yaml:"backup"`
	Outside   []RefBackup  `yaml:"outside,omitempty"`
	CreatedAt time.Time    `yaml:"created_at"`
}

func (r *DeleteLabel) Kind() Kind       { return KindDeleteLabel }
func (r *DeleteLabel) Labels() []string { return []string{r.Label} }
func (r *DeleteLabel) When() time.Time  { return r.CreatedAt }
func (r *DeleteLabel) record()          {}

func (r *DeleteLabel) Summary() string {
	return fmt.Sprintf("delete label %q", r.Label)
}

// MovedFile is a reference moved by a rename; From is where it lives now
type MovedFile struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// RenameLabel renamed a label and moved its files
type RenameLabel struct {
	OldLabel  string      `yaml:"old_label"`
	NewLabel  string      `yaml:"new_label"`
	OldFolder string      `yaml:"old_folder"`
	NewFolder string      `yaml:"new_folder"`
	Threshold float64     `yaml:"threshold"`
	Files     []MovedFile `yaml:"files"`
	CreatedAt time.Time   `yaml:"created_at"`
}

func (r *RenameLabel) Kind() Kind       { return KindRenameLabel }
func (r *RenameLabel) Labels() []string { return []string{r.OldLabel, r.NewLabel} }
func (r *RenameLabel) When() time.Time  { return r.CreatedAt }
func (r *RenameLabel) record()          {}

func (r *RenameLabel) Summary() string {
	return fmt.Sprintf("rename label %q to %q", r.OldLabel, r.NewLabel)
}

var (
	_ Record = (*DeleteRefs)(nil)
	_ Record = (*DeleteLabel)(nil)
	_ Record = (*RenameLabel)(nil)
)
