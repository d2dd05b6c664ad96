package timeline

import (
	"errors"

	"moxie/internal/evtc"
)

// ErrEmptyEncounter is returned when there are no events to bound the encounter.
var ErrEmptyEncounter = errors.New("encounter has no events")

// SelectSubject returns the address of the first player agent in table order,
// or 0 when the table holds no player.
func SelectSubject(agents []evtc.Agent) uint64 {
	for _, a := range agents {
		if a.IsPlayer() {
			return a.Addr
		}
	}
	return 0
}

// Bounds returns the times of the first and last event of the whole encounter.
func Bounds(events []evtc.Event) (start, end uint64, err error) {
	if len(events) == 0 {
		return 0, 0, ErrEmptyEncounter
	}
	return events[0].Time, events[len(events)-1].Time, nil
}

// Reducer turns an event stream into a Timeline. It holds no per-call state
// and is safe for concurrent use.
type Reducer struct {
	instants SkillSet
}

// NewReducer creates a reducer. A nil instants set disables the instant-cast shortcut.
func NewReducer(instants SkillSet) *Reducer {
	return &Reducer{instants: instants}
}

// Reduce walks events once, in order, keeping only those sourced by subject.
func (r *Reducer) Reduce(events []evtc.Event, subject uint64) *Timeline {
	out := &Timeline{Buffs: make(map[uint32][]BuffEvent)}
	pending := make(map[uint32][]uint64)

	for _, e := range events {
		if e.SrcAgent != subject {
			continue
		}

		if r.instants.Contains(e.SkillID) {
			out.Casts = append(out.Casts, SkillCast{ID: e.SkillID, Start: e.Time, End: e.Time, Fired: true})
		}

		sig := Classify(e)
		switch sig.Kind {
		case SignalStart:
			pending[e.SkillID] = append(pending[e.SkillID], sig.Time)

		case SignalEnd:
			starts := pending[e.SkillID]
			if len(starts) == 0 {
				// End without a visible start.
				continue
			}
			last := len(starts) - 1
			pending[e.SkillID] = starts[:last]
			out.Casts = append(out.Casts, SkillCast{
				ID:    e.SkillID,
				Start: starts[last],
				End:   sig.Time,
				Fired: sig.Fired,
			})

		case SignalApply:
			out.Buffs[e.SkillID] = appendBuff(out.Buffs[e.SkillID], Apply(sig.Time))

		case SignalRemove:
			out.Buffs[e.SkillID] = appendBuff(out.Buffs[e.SkillID], Remove(sig.Time))
		}
	}

	for _, starts := range pending {
		out.pending += len(starts)
	}
	return out
}

// appendBuff appends ev, except that a Remove landing on the same instant as
// a trailing Apply is placed before that Apply: the stack is removed before
// the new one is applied.
func appendBuff(seq []BuffEvent, ev BuffEvent) []BuffEvent {
	n := len(seq)
	if n > 0 && ev.Kind == BuffRemove {
		last := seq[n-1]
		if last.Kind == BuffApply && last.Time == ev.Time {
			seq = append(seq, last)
			seq[n-1] = ev
			return seq
		}
	}
	return append(seq, ev)
}
