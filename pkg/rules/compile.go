package rules

import (
	"fmt"

	"github.com/johnw42/remapd/pkg/keys"
)

// Mapping is a validated rule: a trigger keycode, the modifier spec in
// force when it fires, and the output resolved to keycode chords.
// Mappings are matched in document order, first match wins.
type Mapping struct {
	Name        string
	WindowTitle string
	Input       keys.Keycode
	Mods        ModSpec
	Output      [][]keys.Keycode
}

// Compile validates a parsed document against the keyboard layout.
// Group attributes are folded into the contained rules here, so the
// dispatch path never sees the nesting.
func Compile(items []Item, layout *keys.Layout) ([]Mapping, error) {
	var mappings []Mapping
	err := compileItems(items, inherited{}, layout, &mappings)
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

// inherited is the group state pushed down onto contained items.
type inherited struct {
	name        string
	windowTitle string
}

func compileItems(items []Item, inh inherited, layout *keys.Layout, out *[]Mapping) error {
	for i := range items {
		it := &items[i]
		if !it.enabled() {
			continue
		}

		name := it.Name
		if name == "" {
			name = inh.name
		}
		windowTitle := it.WindowTitle
		if windowTitle == "" {
			windowTitle = inh.windowTitle
		}

		if it.Contents != nil {
			if it.Input != nil || it.Output != nil {
				return fmt.Errorf("rule %s: has both contents and input/output", describe(it, i))
			}
			err := compileItems(it.Contents, inherited{name: name, windowTitle: windowTitle}, layout, out)
			if err != nil {
				return err
			}
			continue
		}

		m, err := compileRule(it, layout)
		if err != nil {
			return fmt.Errorf("rule %s: %w", describe(it, i), err)
		}
		m.Name = name
		m.WindowTitle = windowTitle
		*out = append(*out, m)
	}
	return nil
}

func compileRule(it *Item, layout *keys.Layout) (Mapping, error) {
	if it.Input == nil {
		return Mapping{}, fmt.Errorf("missing input")
	}
	if it.Output == nil {
		return Mapping{}, fmt.Errorf("missing output")
	}

	input, err := it.Input.Resolve(layout)
	if err != nil {
		return Mapping{}, fmt.Errorf("input: %w", err)
	}

	var spec ModSpec
	for mod, d := range it.dispositions() {
		if d != nil {
			spec[mod] = *d
		}
	}

	output := make([][]keys.Keycode, 0, len(it.Output.Chords))
	for _, chord := range it.Output.Chords {
		if len(chord) == 0 {
			return Mapping{}, fmt.Errorf("empty chord in output")
		}
		codes := make([]keys.Keycode, 0, len(chord))
		for _, spec := range chord {
			code, err := spec.Resolve(layout)
			if err != nil {
				return Mapping{}, fmt.Errorf("output: %w", err)
			}
			codes = append(codes, code)
		}
		output = append(output, codes)
	}
	if len(output) == 0 {
		return Mapping{}, fmt.Errorf("empty output")
	}

	return Mapping{Input: input, Mods: spec, Output: output}, nil
}

func describe(it *Item, idx int) string {
	if it.Name != "" {
		return fmt.Sprintf("%q", it.Name)
	}
	if it.Input != nil {
		return fmt.Sprintf("#%d (input %s)", idx+1, it.Input)
	}
	return fmt.Sprintf("#%d", idx+1)
}
