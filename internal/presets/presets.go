// Package presets holds named prompt sets that can replace a session's
// prompts in one step.
package presets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/satindergrewal/vibejockey/internal/wire"
)

// Prompt is one weighted text in a preset.
type Prompt struct {
	Text   string  `yaml:"text" json:"text"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Preset is a labelled prompt set.
type Preset struct {
	Label   string   `yaml:"label" json:"label"`
	Prompts []Prompt `yaml:"prompts" json:"prompts"`
}

// builtin is the preset library every deck ships with.
var builtin = []Preset{
	{Label: "Night drive", Prompts: []Prompt{
		{Text: "synthwave", Weight: 1.2},
		{Text: "neon pads", Weight: 0.8},
		{Text: "steady kick", Weight: 0.6},
	}},
	{Label: "Warehouse techno", Prompts: []Prompt{
		{Text: "industrial techno", Weight: 1.0},
		{Text: "distorted drums", Weight: 0.9},
		{Text: "dark bassline", Weight: 0.7},
	}},
	{Label: "Lo-fi study", Prompts: []Prompt{
		{Text: "lo-fi hip hop", Weight: 1.0},
		{Text: "vinyl crackle", Weight: 0.5},
		{Text: "warm piano", Weight: 0.6},
	}},
	{Label: "Cinematic swell", Prompts: []Prompt{
		{Text: "cinematic strings", Weight: 1.0},
		{Text: "soft brass", Weight: 0.5},
		{Text: "dramatic build", Weight: 0.7},
	}},
}

// Builtin returns a copy of the built-in presets.
func Builtin() []Preset {
	out := make([]Preset, len(builtin))
	for i, p := range builtin {
		out[i] = p.clone()
	}
	return out
}

// Instantiate turns the preset into a prompt set with fresh ids.
func (p Preset) Instantiate() []wire.WeightedPrompt {
	out := make([]wire.WeightedPrompt, len(p.Prompts))
	for i, pr := range p.Prompts {
		out[i] = wire.WeightedPrompt{ID: uuid.NewString(), Text: pr.Text, Weight: pr.Weight}
	}
	return out
}

// Validate rejects a preset with no label, no prompts, a blank prompt or a
// weight outside the accepted range.
func (p Preset) Validate() error {
	if strings.TrimSpace(p.Label) == "" {
		return errors.New("preset has no label")
	}
	if len(p.Prompts) == 0 {
		return fmt.Errorf("preset %q has no prompts", p.Label)
	}
	for i, pr := range p.Prompts {
		if strings.TrimSpace(pr.Text) == "" {
			return fmt.Errorf("preset %q prompt %d has no text", p.Label, i+1)
		}
		if err := wire.CheckWeight(pr.Weight); err != nil {
			return fmt.Errorf("preset %q prompt %d: %w", p.Label, i+1, err)
		}
	}
	return nil
}

func (p Preset) clone() Preset {
	p.Prompts = append([]Prompt(nil), p.Prompts...)
	return p
}

func key(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Library is an ordered, label-indexed preset collection. Labels match
// case-insensitively.
type Library struct {
	presets []Preset
	index   map[string]int
}

// New builds a library of the built-ins plus user. A user preset replaces a
// built-in with the same label in place; others are appended in order.
func New(user []Preset) (*Library, error) {
	l := &Library{index: make(map[string]int)}
	for _, p := range builtin {
		l.put(p.clone())
	}
	for _, p := range user {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		l.put(p.clone())
	}
	return l, nil
}

func (l *Library) put(p Preset) {
	k := key(p.Label)
	if i, ok := l.index[k]; ok {
		l.presets[i] = p
		return
	}
	l.index[k] = len(l.presets)
	l.presets = append(l.presets, p)
}

type file struct {
	Presets []Preset `yaml:"presets"`
}

// Load reads user presets from a YAML file and merges them over the
// built-ins. An empty path yields the built-ins alone.
func Load(path string) (*Library, error) {
	if path == "" {
		return New(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}
	lib, err := New(f.Presets)
	if err != nil {
		return nil, fmt.Errorf("presets %s: %w", path, err)
	}
	return lib, nil
}

// All returns every preset in library order.
func (l *Library) All() []Preset {
	out := make([]Preset, len(l.presets))
	for i, p := range l.presets {
		out[i] = p.clone()
	}
	return out
}

// Find looks a preset up by label.
func (l *Library) Find(label string) (Preset, bool) {
	i, ok := l.index[key(label)]
	if !ok {
		return Preset{}, false
	}
	return l.presets[i].clone(), true
}

// Len returns the number of presets.
func (l *Library) Len() int { return len(l.presets) }
