// Package workspace manages the ~/.loopmodel/ directory hierarchy.
//
// Directory layout:
//
//	~/.loopmodel/<workspace>/
//	    <profile>.yaml           # machine profile: cache, word sizes, bindings
//	    <profile>/<program>.md   # reports produced under that profile
//
// LOOPMODEL_HOME replaces ~/.loopmodel when set.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xyproto/env/v2"

	"loopmodel/internal/config"
	"loopmodel/internal/report"
)

// Workspace is a named directory of profiles and reports.
type Workspace struct {
	Dir string
}

// baseDir returns the directory holding every workspace.
func baseDir() (string, error) {
	env.Load()
	if dir := env.Str("LOOPMODEL_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".loopmodel"), nil
}

// Init creates the workspace directory and errors if it already exists.
func Init(name string) error {
	base, err := baseDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(base, name)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("workspace %q already exists at %s", name, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	return nil
}

// Open opens an existing workspace.
func Open(name string) (*Workspace, error) {
	base, err := baseDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(base, name)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("workspace %q not found (run 'loopmodel init %s' first)", name, name)
	}
	return &Workspace{Dir: dir}, nil
}

// ProfilePath is the location of <profile>.yaml.
func (w *Workspace) ProfilePath(name string) string {
	return filepath.Join(w.Dir, name+".yaml")
}

// ReportPath is where the report of program under profile is written.
func (w *Workspace) ReportPath(profile, program string) string {
	return filepath.Join(w.Dir, profile, report.Filename(program))
}

// AddProfile validates and writes a profile. Errors if it already exists.
func (w *Workspace) AddProfile(name string, cfg *config.Config) error {
	path := w.ProfilePath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("profile %q already exists in workspace", name)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("profile %q: %w", name, err)
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// LoadProfile reads a profile, applying environment overrides.
func (w *Workspace) LoadProfile(name string) (*config.Config, error) {
	cfg, err := config.Load(w.ProfilePath(name))
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}
	return cfg, nil
}

// ReadProfile returns the raw bytes of a profile.
func (w *Workspace) ReadProfile(name string) ([]byte, error) {
	data, err := os.ReadFile(w.ProfilePath(name))
	if err != nil {
		return nil, fmt.Errorf("read profile %q: %w", name, err)
	}
	return data, nil
}

// ListProfiles returns profile names derived from *.yaml files, sorted.
func (w *Workspace) ListProfiles() ([]string, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return nil, fmt.Errorf("read workspace dir: %w", err)
	}
	var profiles []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".yaml") {
			profiles = append(profiles, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(profiles)
	return profiles, nil
}

// RemoveProfile removes a profile and its reports.
func (w *Workspace) RemoveProfile(name string) error {
	path := w.ProfilePath(name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("profile %q not found in workspace", name)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove profile: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(w.Dir, name)); err != nil {
		return fmt.Errorf("remove profile reports: %w", err)
	}
	return nil
}

// List returns the names of all workspaces.
func List() ([]string, error) {
	base, err := baseDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read loopmodel dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Remove deletes a workspace and all its contents.
func Remove(name string) error {
	base, err := baseDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(base, name)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("workspace %q not found", name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}
