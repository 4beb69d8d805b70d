package tts

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/apresai/papercast/internal/script"
)

//go:embed voices/*.yaml
var voiceFiles embed.FS

// VoiceIdentity is a concrete provider voice bound to a speaker role.
type VoiceIdentity struct {
	Role            script.Speaker
	ProviderVoiceID string
	DisplayName     string
	Language        string
}

// VoicePair holds the two voices of an episode.
type VoicePair struct {
	Host   VoiceIdentity
	Expert VoiceIdentity
}

// For returns the voice for a speaker role.
func (p VoicePair) For(s script.Speaker) VoiceIdentity {
	if s == script.Host {
		return p.Host
	}
	return p.Expert
}

// VoiceSelection is either a Preset or an Explicit pair of voice keys.
type VoiceSelection interface {
	isVoiceSelection()
}

// Preset selects a named Host/Expert pairing.
type Preset struct {
	ID string
}

// Explicit selects each role's voice by directory key.
type Explicit struct {
	HostKey   string
	ExpertKey string
}

func (Preset) isVoiceSelection()   {}
func (Explicit) isVoiceSelection() {}

// ParseSelection builds a selection from optional request fields. Explicit
// keys win only when both are present.
func ParseSelection(hostKey, expertKey, presetID string) VoiceSelection {
	if strings.TrimSpace(hostKey) != "" && strings.TrimSpace(expertKey) != "" {
		return Explicit{HostKey: hostKey, ExpertKey: expertKey}
	}
	return Preset{ID: presetID}
}

// VoiceInfo describes a directory voice for display.
type VoiceInfo struct {
	Key         string `yaml:"-"`
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Gender      string `yaml:"gender"`
	Language    string `yaml:"language"`
	Description string `yaml:"description"`
}

// PresetInfo describes a directory preset for display.
type PresetInfo struct {
	Key         string `yaml:"-"`
	Host        string `yaml:"host"`
	Expert      string `yaml:"expert"`
	Description string `yaml:"description"`
}

type directoryFile struct {
	Provider      string                `yaml:"provider"`
	Version       int                   `yaml:"version"`
	DefaultHost   string                `yaml:"default_host"`
	DefaultExpert string                `yaml:"default_expert"`
	DefaultPreset string                `yaml:"default_preset"`
	Voices        map[string]VoiceInfo  `yaml:"voices"`
	Presets       map[string]PresetInfo `yaml:"presets"`
}

// Directory is a read-only voice and preset table for one provider. It is
// loaded once and never mutated.
type Directory struct {
	provider      string
	version       int
	defaultHost   string
	defaultExpert string
	defaultPreset string
	voices        map[string]VoiceInfo
	presets       map[string]PresetInfo
}

// DefaultDirectory loads the embedded directory for a provider.
func DefaultDirectory(provider string) (*Directory, error) {
	data, err := voiceFiles.ReadFile("voices/" + provider + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no voice directory for provider %q", provider)
	}
	return ParseDirectory(data)
}

// LoadDirectory reads a directory from a YAML file on disk.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voice directory %s: %w", path, err)
	}
	return ParseDirectory(data)
}

// ParseDirectory decodes and validates a directory document.
func ParseDirectory(data []byte) (*Directory, error) {
	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse voice directory: %w", err)
	}

	d := &Directory{
		provider:      f.Provider,
		version:       f.Version,
		defaultHost:   strings.ToLower(f.DefaultHost),
		defaultExpert: strings.ToLower(f.DefaultExpert),
		defaultPreset: strings.ToLower(f.DefaultPreset),
		voices:        make(map[string]VoiceInfo, len(f.Voices)),
		presets:       make(map[string]PresetInfo, len(f.Presets)),
	}
	for k, v := range f.Voices {
		k = strings.ToLower(k)
		v.Key = k
		d.voices[k] = v
	}
	for k, p := range f.Presets {
		k = strings.ToLower(k)
		p.Key = k
		p.Host = strings.ToLower(p.Host)
		p.Expert = strings.ToLower(p.Expert)
		d.presets[k] = p
	}

	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Directory) validate() error {
	if _, ok := d.voices[d.defaultHost]; !ok {
		return fmt.Errorf("voice directory %s: default_host %q is not a voice", d.provider, d.defaultHost)
	}
	if _, ok := d.voices[d.defaultExpert]; !ok {
		return fmt.Errorf("voice directory %s: default_expert %q is not a voice", d.provider, d.defaultExpert)
	}
	if _, ok := d.presets[d.defaultPreset]; !ok {
		return fmt.Errorf("voice directory %s: default_preset %q is not a preset", d.provider, d.defaultPreset)
	}
	for k, p := range d.presets {
		if _, ok := d.voices[p.Host]; !ok {
			return fmt.Errorf("voice directory %s: preset %q host %q is not a voice", d.provider, k, p.Host)
		}
		if _, ok := d.voices[p.Expert]; !ok {
			return fmt.Errorf("voice directory %s: preset %q expert %q is not a voice", d.provider, k, p.Expert)
		}
	}
	return nil
}

func (d *Directory) Provider() string { return d.provider }
func (d *Directory) Version() int     { return d.version }

// Resolve maps a selection to concrete voices. Unknown keys fall back to the
// role's default voice and unknown presets to the default preset; it never
// fails.
func (d *Directory) Resolve(sel VoiceSelection) VoicePair {
	hostKey, expertKey := d.defaultHost, d.defaultExpert

	switch s := sel.(type) {
	case Explicit:
		hostKey = d.keyOr(s.HostKey, d.defaultHost)
		expertKey = d.keyOr(s.ExpertKey, d.defaultExpert)
	case Preset:
		p, ok := d.presets[strings.ToLower(strings.TrimSpace(s.ID))]
		if !ok {
			p = d.presets[d.defaultPreset]
		}
		hostKey, expertKey = p.Host, p.Expert
	default:
		p := d.presets[d.defaultPreset]
		hostKey, expertKey = p.Host, p.Expert
	}

	return VoicePair{
		Host:   d.identity(script.Host, hostKey),
		Expert: d.identity(script.Expert, expertKey),
	}
}

func (d *Directory) keyOr(key, fallback string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if _, ok := d.voices[key]; ok {
		return key
	}
	return fallback
}

func (d *Directory) identity(role script.Speaker, key string) VoiceIdentity {
	v := d.voices[key]
	return VoiceIdentity{Role: role, ProviderVoiceID: v.ID, DisplayName: v.Name, Language: v.Language}
}

// Voices returns all voices sorted by key.
func (d *Directory) Voices() []VoiceInfo {
	out := make([]VoiceInfo, 0, len(d.voices))
	for _, v := range d.voices {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Presets returns all presets sorted by key.
func (d *Directory) Presets() []PresetInfo {
	out := make([]PresetInfo, 0, len(d.presets))
	for _, p := range d.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// DefaultFor returns the role a voice key is the default for, if any.
func (d *Directory) DefaultFor(key string) string {
	switch key {
	case d.defaultHost:
		return "Host"
	case d.defaultExpert:
		return "Expert"
	}
	return ""
}

// DefaultPreset returns the id of the fallback preset.
func (d *Directory) DefaultPreset() string { return d.defaultPreset }
