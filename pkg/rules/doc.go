package rules

import (
	"fmt"
	"os"

	"github.com/johnw42/remapd/pkg/keys"
	"gopkg.in/yaml.v3"
)

// KeySpec references a key by literal keycode or by keysym name.
type KeySpec struct {
	Code int
	Sym  string
}

func (k KeySpec) String() string {
	if k.Sym != "" {
		return k.Sym
	}
	return fmt.Sprintf("keycode %d", k.Code)
}

// Resolve turns the reference into a concrete keycode under the layout.
func (k KeySpec) Resolve(layout *keys.Layout) (keys.Keycode, error) {
	if k.Sym != "" {
		sym, ok := keys.LookupName(k.Sym)
		if !ok {
			return 0, fmt.Errorf("unknown key name %q", k.Sym)
		}
		code, ok := layout.KeycodeForSym(sym)
		if !ok {
			return 0, fmt.Errorf("no key produces %q in the current layout", k.Sym)
		}
		return code, nil
	}
	if k.Code < 1 || k.Code > 255 {
		return 0, fmt.Errorf("keycode %d out of range", k.Code)
	}
	return keys.Keycode(k.Code), nil
}

func (k *KeySpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!int":
		return value.Decode(&k.Code)
	case "!!str":
		k.Sym = value.Value
		return nil
	}
	return fmt.Errorf("line %d: key must be a keycode or a key name", value.Line)
}

// KeySeq is a rule output: a single key, a chord, or a sequence of
// chords, normalized to sequence-of-chords form.
type KeySeq struct {
	Chords [][]KeySpec
}

func (s *KeySeq) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var key KeySpec
		if err := value.Decode(&key); err != nil {
			return err
		}
		s.Chords = [][]KeySpec{{key}}
		return nil
	case yaml.SequenceNode:
		if len(value.Content) == 0 {
			return fmt.Errorf("line %d: output must not be empty", value.Line)
		}
		if value.Content[0].Kind == yaml.SequenceNode {
			return value.Decode(&s.Chords)
		}
		var chord []KeySpec
		if err := value.Decode(&chord); err != nil {
			return err
		}
		s.Chords = [][]KeySpec{chord}
		return nil
	}
	return fmt.Errorf("line %d: output must be a key, a chord, or a list of chords", value.Line)
}

// Item is one entry in a rule document: a mapping rule, or a group
// whose contents inherit its name, conditions, and enabled flag.
type Item struct {
	Name        string `yaml:"name"`
	Enabled     *bool  `yaml:"enabled"`
	WindowTitle string `yaml:"window_title"`

	Shift    *Disposition `yaml:"shift"`
	CapsLock *Disposition `yaml:"caps_lock"`
	Ctrl     *Disposition `yaml:"ctrl"`
	Alt      *Disposition `yaml:"alt"`
	NumLock  *Disposition `yaml:"num_lock"`
	Mod3     *Disposition `yaml:"mod3"`
	Super    *Disposition `yaml:"super"`
	Mod5     *Disposition `yaml:"mod5"`

	Input  *KeySpec `yaml:"input"`
	Output *KeySeq  `yaml:"output"`

	Contents []Item `yaml:"contents"`
}

func (it *Item) enabled() bool {
	return it.Enabled == nil || *it.Enabled
}

func (it *Item) dispositions() map[keys.Modifier]*Disposition {
	return map[keys.Modifier]*Disposition{
		keys.Shift:    it.Shift,
		keys.CapsLock: it.CapsLock,
		keys.Ctrl:     it.Ctrl,
		keys.Alt:      it.Alt,
		keys.NumLock:  it.NumLock,
		keys.Mod3:     it.Mod3,
		keys.Super:    it.Super,
		keys.Mod5:     it.Mod5,
	}
}

// Parse reads a rule document.
func Parse(data []byte) ([]Item, error) {
	var items []Item
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return items, nil
}

// Load reads a rule document from a file.
func Load(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}
