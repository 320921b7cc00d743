// Package preset stores named recorder layouts and moves them in and out of
// the portable JSON export format.
package preset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"captionjoin/internal/fault"
	"captionjoin/internal/session"

	"github.com/pelletier/go-toml/v2"
)

// ExportVersion is written into every export.
const ExportVersion = "1.0"

// Recorder is one recorder of a layout.
type Recorder struct {
	Name      string `toml:"name" json:"name"`
	Language  string `toml:"language" json:"language"`
	DeviceID  string `toml:"device_id" json:"deviceId"`
	Muted     bool   `toml:"muted" json:"muted"`
	Collapsed bool   `toml:"collapsed" json:"collapsed"`
	Connected *bool  `toml:"connected,omitempty" json:"connected,omitempty"`
}

// Preset is a saved layout.
type Preset struct {
	Recorders []Recorder `toml:"recorders" json:"recorders"`
}

// FromConfigs snapshots recorder configs. The connected flag is not kept so
// every recorder joins when the preset is loaded.
func FromConfigs(cfgs []session.RecorderConfig) Preset {
	p := Preset{Recorders: make([]Recorder, 0, len(cfgs))}
	for _, c := range cfgs {
		p.Recorders = append(p.Recorders, Recorder{
			Name:      c.Name,
			Language:  c.Language,
			DeviceID:  c.DeviceID,
			Muted:     c.Muted,
			Collapsed: c.Collapsed,
		})
	}
	return p
}

// Configs converts the layout back into recorder configs.
func (p Preset) Configs() []session.RecorderConfig {
	out := make([]session.RecorderConfig, 0, len(p.Recorders))
	for _, r := range p.Recorders {
		out = append(out, session.RecorderConfig{
			Name:      r.Name,
			Language:  r.Language,
			DeviceID:  r.DeviceID,
			Muted:     r.Muted,
			Collapsed: r.Collapsed,
			Connected: r.Connected,
		})
	}
	return out
}

// Store keeps presets by name.
type Store interface {
	List() ([]string, error)
	Get(name string) (Preset, error)
	Save(name string, p Preset) error
	Delete(name string) error
}

// FileStore is a Store backed by one TOML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type document struct {
	Presets map[string]Preset `toml:"presets"`
}

// NewFileStore returns a store at path. The file is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() (document, error) {
	doc := document{Presets: map[string]Preset{}}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return doc, err
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse presets: %w", err)
	}
	if doc.Presets == nil {
		doc.Presets = map[string]Preset{}
	}
	return doc, nil
}

func (s *FileStore) store(doc document) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(doc)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// List returns preset names sorted.
func (s *FileStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doc.Presets))
	for name := range doc.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) Get(name string) (Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return Preset{}, err
	}
	p, ok := doc.Presets[name]
	if !ok {
		return Preset{}, fault.Validationf("Preset %q not found", name)
	}
	return p, nil
}

// Save stores p under name, replacing any preset of that name.
func (s *FileStore) Save(name string, p Preset) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fault.Validationf("Please enter a name for the preset")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if p.Recorders == nil {
		p.Recorders = []Recorder{}
	}
	doc.Presets[name] = p
	return s.store(doc)
}

func (s *FileStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Presets[name]; !ok {
		return fault.Validationf("Preset %q not found", name)
	}
	delete(doc.Presets, name)
	return s.store(doc)
}

// Export is the portable file format.
type Export struct {
	Name       string `json:"name"`
	ExportDate string `json:"exportDate"`
	Version    string `json:"version"`
	Preset     Preset `json:"preset"`
}

// Marshal renders p as an indented export document.
func Marshal(name string, p Preset, now time.Time) ([]byte, error) {
	if p.Recorders == nil {
		p.Recorders = []Recorder{}
	}
	return json.MarshalIndent(Export{
		Name:       name,
		ExportDate: now.UTC().Format(time.RFC3339),
		Version:    ExportVersion,
		Preset:     p,
	}, "", "  ")
}

var unsafeChars = regexp.MustCompile(`(?i)[^a-z0-9]`)

// FileName is the suggested export file name for a preset.
func FileName(name string) string {
	return "captionjoin-preset-" + strings.ToLower(unsafeChars.ReplaceAllString(name, "_")) + ".json"
}

// Unmarshal validates an export document.
func Unmarshal(data []byte) (string, Preset, error) {
	var env struct {
		Name   string          `json:"name"`
		Preset json.RawMessage `json:"preset"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", Preset{}, fault.Validationf("Error reading preset file. Please check the file format.")
	}
	if strings.TrimSpace(env.Name) == "" || isEmpty(env.Preset) {
		return "", Preset{}, fault.Validationf("Invalid preset file format")
	}
	var body struct {
		Recorders json.RawMessage `json:"recorders"`
	}
	if err := json.Unmarshal(env.Preset, &body); err != nil {
		return "", Preset{}, fault.Validationf("Invalid preset file format")
	}
	if !bytes.HasPrefix(bytes.TrimSpace(body.Recorders), []byte("[")) {
		return "", Preset{}, fault.Validationf("Invalid preset structure - missing recorders")
	}
	var p Preset
	if err := json.Unmarshal(body.Recorders, &p.Recorders); err != nil {
		return "", Preset{}, fault.Validationf("Invalid preset structure - missing recorders")
	}
	return env.Name, p, nil
}

func isEmpty(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte("false")) ||
		bytes.Equal(t, []byte("0")) || bytes.Equal(t, []byte(`""`))
}

// Import stores an export document. An existing preset of the same name is
// only replaced when force is set.
func Import(s Store, data []byte, force bool) (string, error) {
	name, p, err := Unmarshal(data)
	if err != nil {
		return "", err
	}
	if !force {
		if _, err := s.Get(name); err == nil {
			return "", fault.Validationf("Preset %q already exists", name)
		}
	}
	if err := s.Save(name, p); err != nil {
		return "", err
	}
	return name, nil
}
