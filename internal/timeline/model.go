// Package timeline reduces a decoded combat event stream into per-skill cast and buff timelines
// for a single subject agent.
package timeline

import (
	"encoding/json"
	"fmt"
)

// SkillCast is one resolved cast attempt by the subject.
type SkillCast struct {
	ID    uint32 `json:"id"`
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Fired bool   `json:"fired"` // false when cancelled before the effect went out
}

// BuffKind tags a BuffEvent.
type BuffKind uint8

const (
	BuffApply BuffKind = iota
	BuffRemove
)

func (k BuffKind) String() string {
	if k == BuffApply {
		return "Apply"
	}
	return "Remove"
}

// BuffEvent is an Apply or Remove at a point in time.
type BuffEvent struct {
	Kind BuffKind
	Time uint64
}

// Apply builds an apply event at t.
func Apply(t uint64) BuffEvent { return BuffEvent{Kind: BuffApply, Time: t} }

// Remove builds a remove event at t.
func Remove(t uint64) BuffEvent { return BuffEvent{Kind: BuffRemove, Time: t} }

// MarshalJSON encodes the event as a single-key object, {"Apply":t} or {"Remove":t}.
func (e BuffEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]uint64{e.Kind.String(): e.Time})
}

// UnmarshalJSON accepts the encoding produced by MarshalJSON.
func (e *BuffEvent) UnmarshalJSON(data []byte) error {
	var tagged map[string]uint64
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if len(tagged) != 1 {
		return fmt.Errorf("buff event: want exactly one tag, got %d", len(tagged))
	}
	for tag, t := range tagged {
		switch tag {
		case "Apply":
			*e = Apply(t)
		case "Remove":
			*e = Remove(t)
		default:
			return fmt.Errorf("buff event: unknown tag %q", tag)
		}
	}
	return nil
}

// Timeline is the reduction output for one subject.
type Timeline struct {
	Casts []SkillCast
	Buffs map[uint32][]BuffEvent

	// pending counts starts that never resolved; informational only.
	pending int
}

// Pending returns the number of cast starts left without a matching end.
func (t *Timeline) Pending() int {
	return t.pending
}

// SkillSet is a set of skill ids.
type SkillSet map[uint32]struct{}

// NewSkillSet builds a set from ids.
func NewSkillSet(ids ...uint32) SkillSet {
	s := make(SkillSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is in the set. A nil set contains nothing.
func (s SkillSet) Contains(id uint32) bool {
	_, ok := s[id]
	return ok
}

// DefaultInstantSkills returns the skills recorded as zero-length casts: 40183 and 5539.
func DefaultInstantSkills() SkillSet {
	return NewSkillSet(40183, 5539)
}
