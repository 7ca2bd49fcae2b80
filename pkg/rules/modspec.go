package rules

import (
	"fmt"

	"github.com/johnw42/remapd/pkg/keys"
	"gopkg.in/yaml.v3"
)

// Disposition says what a rule demands of one modifier.
type Disposition uint8

const (
	Allowed Disposition = iota
	Required
	Forbidden
)

func (d Disposition) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Required:
		return "required"
	case Forbidden:
		return "forbidden"
	}
	return fmt.Sprintf("Disposition(%d)", uint8(d))
}

// UnmarshalYAML accepts the tri-state names or boolean sugar: true
// means required, false means forbidden.
func (d *Disposition) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!bool":
		var b bool
		if err := value.Decode(&b); err != nil {
			return err
		}
		if b {
			*d = Required
		} else {
			*d = Forbidden
		}
		return nil
	case "!!str":
		switch value.Value {
		case "allowed":
			*d = Allowed
		case "required":
			*d = Required
		case "forbidden":
			*d = Forbidden
		default:
			return fmt.Errorf("line %d: unknown disposition %q", value.Line, value.Value)
		}
		return nil
	}
	return fmt.Errorf("line %d: disposition must be a boolean or allowed/required/forbidden", value.Line)
}

// ModSpec holds one disposition per modifier. The zero value allows
// everything.
type ModSpec [keys.ModifierCount]Disposition

func (s ModSpec) pick(want Disposition) keys.ModSet {
	var set keys.ModSet
	for m := keys.Modifier(0); m < keys.ModifierCount; m++ {
		if s[m] == want {
			set = set.With(m)
		}
	}
	return set
}

func (s ModSpec) Required() keys.ModSet  { return s.pick(Required) }
func (s ModSpec) Allowed() keys.ModSet   { return s.pick(Allowed) }
func (s ModSpec) Forbidden() keys.ModSet { return s.pick(Forbidden) }

// Matches reports whether a rule with this spec applies under the given
// active modifiers: every required one held, no forbidden one held.
func (s ModSpec) Matches(active keys.ModSet) bool {
	return s.Required().SubsetOf(active) && s.Forbidden().Intersect(active).Empty()
}

// Sets enumerates every concrete combination a grab must register to
// cover this spec: the required set joined with each subset of the
// allowed set, 2^|allowed| combinations in all.
func (s ModSpec) Sets() []keys.ModSet {
	sets := []keys.ModSet{s.Required()}
	for _, m := range s.Allowed().Modifiers() {
		withMod := make([]keys.ModSet, len(sets))
		for i, base := range sets {
			withMod[i] = base.With(m)
		}
		sets = append(sets, withMod...)
	}
	return sets
}

func (s ModSpec) String() string {
	return fmt.Sprintf("required=%s allowed=%s forbidden=%s", s.Required(), s.Allowed(), s.Forbidden())
}
