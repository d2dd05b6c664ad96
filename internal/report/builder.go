// Package report assembles the cast/buff summary of an uploaded combat log.
package report

import (
	"fmt"

	"moxie/internal/container"
	"moxie/internal/evtc"
	"moxie/internal/logging"
	"moxie/internal/timeline"
)

// Report is the value handed back to callers. Field tags are the wire format
// consumed by the timeline viewer.
type Report struct {
	Start  uint64                          `json:"start"`
	End    uint64                          `json:"end"`
	Skills map[uint32]string               `json:"skills"`
	Casts  []timeline.SkillCast            `json:"casts"`
	Buffs  map[uint32][]timeline.BuffEvent `json:"buffs"`
}

// Summary carries counters about a build that are logged but not returned to callers.
type Summary struct {
	Subject       uint64
	Events        int
	Casts         int
	BuffSkills    int
	PendingStarts int
}

// Builder unwraps, decodes and reduces uploads.
type Builder struct {
	reducer        *timeline.Reducer
	maxRecordBytes int64
}

// Option configures a Builder.
type Option func(*Builder)

// WithMaxRecordBytes caps the inflated size of a zipped upload. Zero or less
// keeps container.DefaultMaxRecordBytes.
func WithMaxRecordBytes(n int64) Option {
	return func(b *Builder) {
		b.maxRecordBytes = n
	}
}

// NewBuilder creates a builder using the given instant-skill set.
func NewBuilder(instants timeline.SkillSet, opts ...Option) *Builder {
	b := &Builder{reducer: timeline.NewReducer(instants)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build decodes raw upload bytes into a Report.
func (b *Builder) Build(raw []byte) (*Report, error) {
	rep, _, err := b.BuildWithSummary(raw)
	return rep, err
}

// BuildWithSummary is Build plus counters for logging.
func (b *Builder) BuildWithSummary(raw []byte) (*Report, Summary, error) {
	record, err := container.Open(raw, b.maxRecordBytes)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("%w: %v", ErrDecompress, err)
	}

	enc, err := evtc.Parse(record)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return b.FromEncounter(enc)
}

// FromEncounter reduces an already decoded encounter.
func (b *Builder) FromEncounter(enc *evtc.Encounter) (*Report, Summary, error) {
	logger := logging.Logger()

	start, end, err := timeline.Bounds(enc.Events)
	if err != nil {
		return nil, Summary{}, fmt.Errorf("bound encounter: %w", err)
	}

	subject := timeline.SelectSubject(enc.Agents)
	if subject == 0 {
		logger.Warnf("no player agent among %d agents, timelines will be empty", len(enc.Agents))
	}

	tl := b.reducer.Reduce(enc.Events, subject)

	skills := make(map[uint32]string, len(enc.Skills))
	for _, s := range enc.Skills {
		skills[s.ID] = s.Name
	}

	casts := tl.Casts
	if casts == nil {
		casts = []timeline.SkillCast{}
	}

	rep := &Report{
		Start:  start,
		End:    end,
		Skills: skills,
		Casts:  casts,
		Buffs:  tl.Buffs,
	}
	sum := Summary{
		Subject:       subject,
		Events:        len(enc.Events),
		Casts:         len(casts),
		BuffSkills:    len(tl.Buffs),
		PendingStarts: tl.Pending(),
	}
	return rep, sum, nil
}
