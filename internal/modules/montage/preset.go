package montage

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

const DefaultPreset = "classic"

// Preset is a named settings bundle
type Preset struct {
	ID          string   `json:"id" yaml:"-"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Mode        Mode     `json:"mode" yaml:"mode"`
	Settings    Settings `json:"settings" yaml:"settings"`
}

// Presets is a registry of presets keyed by ID.
type Presets struct {
	presets map[string]Preset
}

// NewPresets creates a registry holding the built-in presets
func NewPresets() *Presets {
	p := &Presets{presets: make(map[string]Preset)}
	p.initPresets()
	return p
}

func (p *Presets) initPresets() {
	classic := DefaultSettings()
	p.presets["classic"] = Preset{
		ID:          "classic",
		Name:        "Classic",
		Description: "All scenes in order, one vertical video",
		Mode:        ModeSingle,
		Settings:    classic,
	}

	batch := DefaultSettings()
	batch.Layout.ScaleFactor = 1.2
	p.presets["batch"] = Preset{
		ID:          "batch",
		Name:        "Batch",
		Description: "Up to 30 random combinations of at most 30 seconds",
		Mode:        ModeBatch,
		Settings:    batch,
	}

	tight := DefaultSettings()
	tight.MaxDuration = 10
	tight.AttemptMultiplier = 20
	tight.Layout.ScaleFactor = 1.4
	tight.Layout.WatermarkY = 0.75
	p.presets["tight"] = Preset{
		ID:          "tight",
		Name:        "Tight",
		Description: "Short 10 second combinations with a close-up foreground",
		Mode:        ModeBatch,
		Settings:    tight,
	}
}

// presetFile is the YAML document shape of a presets file.
type presetFile struct {
	Presets map[string]yaml.Node `yaml:"presets"`
}

// LoadFile merges presets from a YAML file into the registry. Fields a
// preset omits keep the values of the classic preset.
func (p *Presets) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read presets file: %w", err)
	}
	return p.Load(data)
}

// Load merges presets from YAML bytes into the registry.
func (p *Presets) Load(data []byte) error {
	var doc presetFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse presets: %w", err)
	}

	for id, node := range doc.Presets {
		preset := Preset{
			ID:       id,
			Name:     id,
			Mode:     ModeSingle,
			Settings: DefaultSettings(),
		}
		if base, ok := p.presets[id]; ok {
			preset = base
		}
		if err := node.Decode(&preset); err != nil {
			return fmt.Errorf("preset %s: %w", id, err)
		}
		preset.ID = id
		if _, err := ParseMode(string(preset.Mode)); err != nil {
			return fmt.Errorf("preset %s: %w", id, err)
		}
		if err := preset.Settings.Validate(); err != nil {
			return fmt.Errorf("preset %s: %w", id, err)
		}
		p.presets[id] = preset
	}
	return nil
}

// List returns all presets sorted by ID
func (p *Presets) List() []Preset {
	presets := make([]Preset, 0, len(p.presets))
	for _, preset := range p.presets {
		presets = append(presets, preset)
	}
	sort.Slice(presets, func(i, j int) bool { return presets[i].ID < presets[j].ID })
	return presets
}

// Get returns a specific preset
func (p *Presets) Get(id string) (*Preset, error) {
	if id == "" {
		id = DefaultPreset
	}
	preset, ok := p.presets[id]
	if !ok {
		return nil, fmt.Errorf("%w: preset not found: %s", ErrInvalidRequest, id)
	}
	return &preset, nil
}

// Resolve builds the mode and settings of a request from a preset, an optional
// mode override and per-request options.
func (p *Presets) Resolve(id, mode string, options map[string]string) (Mode, Settings, error) {
	preset, err := p.Get(id)
	if err != nil {
		return "", Settings{}, err
	}

	m := preset.Mode
	if mode != "" {
		if m, err = ParseMode(mode); err != nil {
			return "", Settings{}, err
		}
	}

	settings, err := ApplyOptions(preset.Settings, options)
	if err != nil {
		return "", Settings{}, err
	}
	return m, settings, nil
}
