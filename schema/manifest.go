// Package schema defines the job manifest consumed by the sandrun CLI.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ImageRefSpec names the image a job runs in, before validation.
type ImageRefSpec struct {
	Repository string `yaml:"repository"`
	Tag        string `yaml:"tag"`
	ID         string `yaml:"id"`
}

// JobManifest describes one job: its image, script, parameters and the
// host directories bound into the container.
type JobManifest struct {
	Image       ImageRefSpec   `yaml:"image"`
	Script      string         `yaml:"script"`
	ScriptPath  string         `yaml:"script_path"`
	Params      map[string]any `yaml:"params"`
	WorkDir     string         `yaml:"work_dir"`
	ResourceDir string         `yaml:"resource_dir"`
	OutputDir   string         `yaml:"output_dir"`
}

// LoadManifest reads and validates a YAML job manifest. A script_path is
// resolved relative to the manifest file and read into Script, so callers
// always get inline source.
func LoadManifest(path string) (JobManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return JobManifest{}, err
	}
	var m JobManifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return JobManifest{}, ErrMissingScript
		}
		return JobManifest{}, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return JobManifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	if m.ScriptPath != "" {
		scriptPath := m.ScriptPath
		if !filepath.IsAbs(scriptPath) {
			scriptPath = filepath.Join(filepath.Dir(path), scriptPath)
		}
		source, err := os.ReadFile(scriptPath)
		if err != nil {
			return JobManifest{}, fmt.Errorf("manifest %s: %w", path, err)
		}
		m.Script = string(source)
		m.ScriptPath = ""
	}
	return m, nil
}

func (m JobManifest) validate() error {
	if strings.TrimSpace(m.Image.Repository) == "" {
		return ErrMissingRepository
	}
	script := strings.TrimSpace(m.Script) != ""
	scriptPath := strings.TrimSpace(m.ScriptPath) != ""
	if !script && !scriptPath {
		return ErrMissingScript
	}
	if script && scriptPath {
		return ErrScriptConflict
	}
	if strings.TrimSpace(m.WorkDir) == "" {
		return ErrMissingWorkDir
	}
	if strings.TrimSpace(m.ResourceDir) == "" {
		return ErrMissingResourceDir
	}
	if strings.TrimSpace(m.OutputDir) == "" {
		return ErrMissingOutputDir
	}
	return nil
}
