package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/mechanism-workbench/workbench/engine"
	"github.com/wricardo/mechanism-workbench/workbench/service"
	"gopkg.in/yaml.v3"
)

var (
	ErrProfileNotFound = service.ErrProfileNotFound
	ErrInvalidProfile  = service.ErrInvalidProfile
)

// DefaultProfile is the profile name used when none is requested
const DefaultProfile = "default"

var profileExts = []string{".json", ".yaml", ".yml"}

// Manager handles tuning profile loading and caching
type Manager struct {
	profileDir     string
	defaultProfile *engine.Tuning
	profiles       map[string]*engine.Tuning
	mu             sync.RWMutex
}

// NewManager creates a new profile manager. An empty profileDir serves only
// the built-in profile.
func NewManager(profileDir string) (*Manager, error) {
	if profileDir != "" {
		if _, err := os.Stat(profileDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("profile directory does not exist: %s", profileDir)
		}
	}

	m := &Manager{
		profileDir: profileDir,
		profiles:   make(map[string]*engine.Tuning),
	}

	m.loadDefaultProfile()
	return m, nil
}

// LoadProfile loads a profile by name
func (m *Manager) LoadProfile(name string) (*engine.Tuning, error) {
	name = profileName(name)

	m.mu.RLock()
	if tuning, exists := m.profiles[name]; exists {
		m.mu.RUnlock()
		return tuning, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if tuning, exists := m.profiles[name]; exists {
		return tuning, nil
	}

	path, err := m.findProfile(name)
	if err != nil {
		if name == DefaultProfile && errors.Is(err, ErrProfileNotFound) {
			return engine.DefaultTuning(), nil
		}
		return nil, err
	}

	tuning, err := engine.LoadTuning(path)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidTuning) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
		}
		return nil, fmt.Errorf("failed to load profile %s: %w", name, err)
	}

	m.profiles[name] = tuning
	return tuning, nil
}

// ListProfiles returns information about all valid profiles in the directory.
// The built-in profile is listed when the directory does not override it.
func (m *Manager) ListProfiles() ([]*service.ProfileInfo, error) {
	var profiles []*service.ProfileInfo
	seen := map[string]bool{}

	if m.profileDir != "" {
		entries, err := os.ReadDir(m.profileDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read profile directory: %w", err)
		}

		for _, entry := range entries {
			ext := filepath.Ext(entry.Name())
			if entry.IsDir() || !isProfileExt(ext) {
				continue
			}

			name := strings.TrimSuffix(entry.Name(), ext)
			if seen[name] {
				continue
			}

			tuning, err := m.LoadProfile(name)
			if err != nil {
				// Skip invalid profiles
				continue
			}

			seen[name] = true
			profiles = append(profiles, profileInfo(entry.Name(), name, tuning))
		}
	}

	if !seen[DefaultProfile] {
		profiles = append(profiles, profileInfo("", DefaultProfile, engine.DefaultTuning()))
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].ProfileID < profiles[j].ProfileID
	})
	return profiles, nil
}

// GetDefault returns the default profile
func (m *Manager) GetDefault() *engine.Tuning {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultProfile
}

// SetDefault sets the default profile by name
func (m *Manager) SetDefault(name string) error {
	tuning, err := m.LoadProfile(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultProfile = tuning
	return nil
}

// RefreshCache drops cached profiles so the next load reads from disk
func (m *Manager) RefreshCache() {
	m.mu.Lock()
	m.profiles = make(map[string]*engine.Tuning)
	m.mu.Unlock()

	m.loadDefaultProfile()
}

// SaveProfile writes a profile to disk. The format follows the extension of
// name; a bare name is written as JSON.
func (m *Manager) SaveProfile(name string, tuning *engine.Tuning) error {
	if m.profileDir == "" {
		return fmt.Errorf("no profile directory configured")
	}
	if err := engine.ValidateTuning(tuning); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	filename := name
	ext := filepath.Ext(name)
	if !isProfileExt(ext) {
		ext = ".json"
		filename = name + ext
	}

	var data []byte
	var err error
	if ext == ".json" {
		data, err = json.MarshalIndent(tuning, "", "  ")
	} else {
		data, err = yaml.Marshal(tuning)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.profileDir, filename), data, 0644); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}

	m.mu.Lock()
	m.profiles[profileName(name)] = tuning
	m.mu.Unlock()

	return nil
}

// ValidateDir loads every profile file in dir and returns the problems found,
// keyed by file name
func ValidateDir(dir string) (map[string]error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile directory: %w", err)
	}

	results := make(map[string]error)
	for _, entry := range entries {
		if entry.IsDir() || !isProfileExt(filepath.Ext(entry.Name())) {
			continue
		}
		_, err := engine.LoadTuning(filepath.Join(dir, entry.Name()))
		results[entry.Name()] = err
	}
	return results, nil
}

// loadDefaultProfile prefers default.{json,yaml,yml} and falls back to the
// built-in profile
func (m *Manager) loadDefaultProfile() {
	tuning, err := m.LoadProfile(DefaultProfile)
	if err != nil {
		tuning = engine.DefaultTuning()
	}

	m.mu.Lock()
	m.defaultProfile = tuning
	m.mu.Unlock()
}

// findProfile locates the file for name, trying each supported extension
func (m *Manager) findProfile(name string) (string, error) {
	if m.profileDir == "" {
		return "", ErrProfileNotFound
	}
	for _, ext := range profileExts {
		path := filepath.Join(m.profileDir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrProfileNotFound
}

func profileName(name string) string {
	if ext := filepath.Ext(name); isProfileExt(ext) {
		return strings.TrimSuffix(name, ext)
	}
	return name
}

func isProfileExt(ext string) bool {
	for _, e := range profileExts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func profileInfo(filename, id string, t *engine.Tuning) *service.ProfileInfo {
	return &service.ProfileInfo{
		Filename:     filename,
		ProfileID:    id,
		Name:         t.Name,
		Description:  t.Description,
		EngageAngle:  t.EngageAngle,
		PreloadAngle: t.PreloadAngle,
	}
}
