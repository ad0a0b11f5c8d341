package labels

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/fileutil"
)

// SidecarName is the descriptor written into every label folder
const SidecarName = "metadata.yaml"

// Sidecar describes a label folder
type Sidecar struct {
	Label     string    `yaml:"label"`
	Threshold float64   `yaml:"threshold"`
	Files     []string  `yaml:"files"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// WriteSidecar replaces folder/metadata.yaml atomically
func WriteSidecar(folder string, sc Sidecar) error {
	if sc.Files == nil {
		sc.Files = []string{}
	}
	data, err := yaml.Marshal(&sc)
	if err != nil {
		return fmt.Errorf("failed to marshal sidecar: %w", err)
	}
	path := filepath.Join(folder, SidecarName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ReadSidecar parses folder/metadata.yaml
func ReadSidecar(folder string) (*Sidecar, error) {
	data, err := os.ReadFile(filepath.Join(folder, SidecarName))
	if err != nil {
		return nil, err
	}
	var sc Sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse sidecar: %w", err)
	}
	return &sc, nil
}

// refreshSidecar regenerates the label's sidecar from its folder contents.
// Failures are logged; the sidecar is informational.
func (m *Manager) refreshSidecar(ctx context.Context, label string) {
	rec, err := m.store.GetLabel(ctx, label)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			m.log.Warn("sidecar skipped", zap.String("label", label), zap.Error(err))
		}
		return
	}
	if _, err := os.Stat(rec.FolderPath); errors.Is(err, fs.ErrNotExist) {
		return
	}

	files, err := fileutil.ListImagesFlat(rec.FolderPath, m.exts)
	if err != nil {
		m.log.Warn("sidecar skipped", zap.String("label", label), zap.Error(err))
		return
	}
	sc := Sidecar{Label: label, Threshold: rec.Threshold, Files: files, UpdatedAt: m.now().UTC()}
	if err := WriteSidecar(rec.FolderPath, sc); err != nil {
		m.log.Warn("failed to write sidecar", zap.String("label", label), zap.Error(err))
	}
}

// removeSidecar deletes the sidecar so an emptied folder can be removed
func removeSidecar(folder string) {
	_ = os.Remove(filepath.Join(folder, SidecarName))
}
