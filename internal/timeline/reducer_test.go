package timeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moxie/internal/evtc"
)

const (
	player uint64 = 0xB2
	other  uint64 = 0xC3
)

func start(t uint64, skill uint32) evtc.Event {
	return evtc.Event{Time: t, SrcAgent: player, SkillID: skill, Activation: evtc.ActivationNormal}
}

func end(t uint64, skill uint32, a evtc.Activation) evtc.Event {
	return evtc.Event{Time: t, SrcAgent: player, SkillID: skill, Activation: a}
}

func apply(t uint64, skill uint32) evtc.Event {
	return evtc.Event{Time: t, SrcAgent: player, SkillID: skill, Buff: 1}
}

func remove(t uint64, skill uint32) evtc.Event {
	return evtc.Event{Time: t, SrcAgent: player, SkillID: skill, BuffRemove: evtc.BuffRemoveSingle}
}

func reduce(events ...evtc.Event) *Timeline {
	return NewReducer(DefaultInstantSkills()).Reduce(events, player)
}

func TestSelectSubject(t *testing.T) {
	agents := []evtc.Agent{
		{Addr: 1, Kind: evtc.AgentNPC},
		{Addr: 2, Kind: evtc.AgentPlayer},
		{Addr: 3, Kind: evtc.AgentPlayer},
	}
	assert.Equal(t, uint64(2), SelectSubject(agents))
	assert.Equal(t, uint64(0), SelectSubject(agents[:1]))
	assert.Equal(t, uint64(0), SelectSubject(nil))
}

func TestBounds(t *testing.T) {
	s, e, err := Bounds([]evtc.Event{{Time: 5, SrcAgent: other}, {Time: 9}, {Time: 42, SrcAgent: other}})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), s)
	assert.Equal(t, uint64(42), e)

	_, _, err = Bounds(nil)
	assert.ErrorIs(t, err, ErrEmptyEncounter)
}

func TestReduce_StartThenCancelFire(t *testing.T) {
	tl := reduce(start(100, 10), end(150, 10, evtc.ActivationCancelFire))

	assert.Equal(t, []SkillCast{{ID: 10, Start: 100, End: 150, Fired: true}}, tl.Casts)
	assert.Empty(t, tl.Buffs)
	assert.Zero(t, tl.Pending())
}

func TestReduce_EndKinds(t *testing.T) {
	cases := []struct {
		activation evtc.Activation
		fired      bool
	}{
		{evtc.ActivationCancelCancel, false},
		{evtc.ActivationCancelFire, true},
		{evtc.ActivationReset, true},
	}
	for _, tc := range cases {
		t.Run(tc.activation.String(), func(t *testing.T) {
			tl := reduce(
				evtc.Event{Time: 1, SrcAgent: player, SkillID: 7, Activation: evtc.ActivationQuickness},
				end(4, 7, tc.activation),
			)
			require.Len(t, tl.Casts, 1)
			assert.Equal(t, tc.fired, tl.Casts[0].Fired)
			assert.Equal(t, uint64(1), tl.Casts[0].Start)
			assert.Equal(t, uint64(4), tl.Casts[0].End)
		})
	}
}

func TestReduce_LIFOPairing(t *testing.T) {
	tl := reduce(
		start(1, 10),
		start(2, 10),
		start(3, 10),
		end(4, 10, evtc.ActivationCancelFire),
		end(5, 10, evtc.ActivationCancelCancel),
	)

	assert.Equal(t, []SkillCast{
		{ID: 10, Start: 3, End: 4, Fired: true},
		{ID: 10, Start: 2, End: 5, Fired: false},
	}, tl.Casts)
	assert.Equal(t, 1, tl.Pending())
}

func TestReduce_PendingIsPerSkill(t *testing.T) {
	tl := reduce(
		start(1, 10),
		start(2, 20),
		end(3, 10, evtc.ActivationCancelFire),
		end(4, 20, evtc.ActivationCancelFire),
	)
	assert.Equal(t, []SkillCast{
		{ID: 10, Start: 1, End: 3, Fired: true},
		{ID: 20, Start: 2, End: 4, Fired: true},
	}, tl.Casts)
}

func TestReduce_DanglingEndDropped(t *testing.T) {
	tl := reduce(end(50, 10, evtc.ActivationCancelFire))
	assert.Empty(t, tl.Casts)
	assert.Empty(t, tl.Buffs)
}

func TestReduce_DanglingEndIsNotABuff(t *testing.T) {
	e := end(50, 10, evtc.ActivationCancelFire)
	e.Buff = 1
	tl := reduce(e)
	assert.Empty(t, tl.Casts)
	assert.Empty(t, tl.Buffs)
}

func TestReduce_OtherAgentsIgnored(t *testing.T) {
	foreign := []evtc.Event{
		{Time: 1, SrcAgent: other, SkillID: 10, Activation: evtc.ActivationNormal},
		{Time: 2, SrcAgent: other, SkillID: 10, Activation: evtc.ActivationCancelFire},
		{Time: 3, SrcAgent: other, SkillID: 40183},
		{Time: 4, SrcAgent: other, SkillID: 740, Buff: 1},
		{Time: 5, SrcAgent: other, SkillID: 740, BuffRemove: evtc.BuffRemoveAll},
	}
	tl := reduce(foreign...)
	assert.Empty(t, tl.Casts)
	assert.Empty(t, tl.Buffs)

	// a foreign end must not resolve the subject's pending start
	tl = reduce(start(1, 10), foreign[1])
	assert.Empty(t, tl.Casts)
	assert.Equal(t, 1, tl.Pending())
}

func TestReduce_NoSubjectYieldsEmptyTimelines(t *testing.T) {
	tl := NewReducer(DefaultInstantSkills()).Reduce([]evtc.Event{start(1, 10), apply(2, 740)}, 0)
	assert.Empty(t, tl.Casts)
	assert.Empty(t, tl.Buffs)
}

func TestReduce_StateChangeNeverActivates(t *testing.T) {
	e := start(1, 10)
	e.StateChange = evtc.StateChange(9)
	closing := end(2, 10, evtc.ActivationCancelFire)

	tl := reduce(e, closing)
	assert.Empty(t, tl.Casts)
	assert.Zero(t, tl.Pending())
}

func TestReduce_StateChangeStillCarriesBuffs(t *testing.T) {
	e := apply(5, 740)
	e.StateChange = evtc.StateChange(9)
	e.Activation = evtc.ActivationNormal

	tl := reduce(e)
	assert.Equal(t, []BuffEvent{Apply(5)}, tl.Buffs[740])
	assert.Empty(t, tl.Casts)
}

func TestReduce_UnknownActivationIsNoSignal(t *testing.T) {
	tl := reduce(end(3, 10, evtc.ActivationUnknown), end(4, 10, evtc.ActivationNone))
	assert.Empty(t, tl.Casts)
	assert.Empty(t, tl.Buffs)
}

func TestReduce_BuffSequences(t *testing.T) {
	tl := reduce(
		apply(10, 740),
		remove(20, 740),
		apply(30, 740),
		apply(15, 1187),
	)
	assert.Equal(t, []BuffEvent{Apply(10), Remove(20), Apply(30)}, tl.Buffs[740])
	assert.Equal(t, []BuffEvent{Apply(15)}, tl.Buffs[1187])
}

func TestReduce_RemoveIgnoresBuffField(t *testing.T) {
	e := remove(20, 740)
	e.Buff = 1
	tl := reduce(e)
	assert.Equal(t, []BuffEvent{Remove(20)}, tl.Buffs[740])
}

func TestReduce_SameInstantRemoveMovesBeforeApply(t *testing.T) {
	tl := reduce(
		apply(10, 740),
		apply(20, 740),
		remove(20, 740),
	)
	assert.Equal(t, []BuffEvent{Apply(10), Remove(20), Apply(20)}, tl.Buffs[740])
}

func TestReduce_SameInstantOtherOrdersAppend(t *testing.T) {
	tl := reduce(
		remove(20, 740),
		apply(20, 740),
		apply(20, 740),
	)
	assert.Equal(t, []BuffEvent{Remove(20), Apply(20), Apply(20)}, tl.Buffs[740])

	tl = reduce(
		apply(20, 741),
		remove(21, 741),
	)
	assert.Equal(t, []BuffEvent{Apply(20), Remove(21)}, tl.Buffs[741])
}

func TestReduce_SwapOnlyLooksAtLastEntry(t *testing.T) {
	tl := reduce(
		apply(20, 740),
		remove(20, 740),
		remove(20, 740),
	)
	// the second remove sees the reordered Apply(20) last and moves before it too
	assert.Equal(t, []BuffEvent{Remove(20), Remove(20), Apply(20)}, tl.Buffs[740])
}

func TestReduce_InstantSkills(t *testing.T) {
	tl := reduce(
		evtc.Event{Time: 7, SrcAgent: player, SkillID: 5539},
		evtc.Event{Time: 9, SrcAgent: player, SkillID: 40183, Buff: 1},
	)

	assert.Equal(t, []SkillCast{
		{ID: 5539, Start: 7, End: 7, Fired: true},
		{ID: 40183, Start: 9, End: 9, Fired: true},
	}, tl.Casts)
	assert.Equal(t, []BuffEvent{Apply(9)}, tl.Buffs[40183])
}

func TestReduce_InstantSkillAlsoActivates(t *testing.T) {
	tl := reduce(
		evtc.Event{Time: 1, SrcAgent: player, SkillID: 40183, Activation: evtc.ActivationNormal},
		evtc.Event{Time: 3, SrcAgent: player, SkillID: 40183, Activation: evtc.ActivationCancelCancel},
	)
	assert.Equal(t, []SkillCast{
		{ID: 40183, Start: 1, End: 1, Fired: true},
		{ID: 40183, Start: 3, End: 3, Fired: true},
		{ID: 40183, Start: 1, End: 3, Fired: false},
	}, tl.Casts)
}

func TestReduce_CustomInstantSet(t *testing.T) {
	tl := NewReducer(NewSkillSet(99)).Reduce([]evtc.Event{
		{Time: 1, SrcAgent: player, SkillID: 99},
		{Time: 2, SrcAgent: player, SkillID: 40183},
	}, player)
	assert.Equal(t, []SkillCast{{ID: 99, Start: 1, End: 1, Fired: true}}, tl.Casts)

	tl = NewReducer(nil).Reduce([]evtc.Event{{Time: 2, SrcAgent: player, SkillID: 40183}}, player)
	assert.Empty(t, tl.Casts)
}

func TestReduce_CastInvariants(t *testing.T) {
	events := []evtc.Event{
		start(1, 10), start(2, 11), apply(2, 740), end(3, 11, evtc.ActivationReset),
		start(4, 10), end(6, 10, evtc.ActivationCancelCancel), end(8, 10, evtc.ActivationCancelFire),
		{Time: 9, SrcAgent: player, SkillID: 5539}, remove(9, 740), end(10, 12, evtc.ActivationCancelFire),
	}
	tl := reduce(events...)
	require.NotEmpty(t, tl.Casts)
	for _, c := range tl.Casts {
		assert.LessOrEqual(t, c.Start, c.End)
	}
	for _, seq := range tl.Buffs {
		for i := 1; i < len(seq); i++ {
			assert.LessOrEqual(t, seq[i-1].Time, seq[i].Time)
		}
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, SignalStart, Classify(start(1, 10)).Kind)
	assert.Equal(t, SignalEnd, Classify(end(1, 10, evtc.ActivationReset)).Kind)
	assert.Equal(t, SignalApply, Classify(apply(1, 10)).Kind)
	assert.Equal(t, SignalRemove, Classify(remove(1, 10)).Kind)
	assert.Equal(t, SignalNone, Classify(evtc.Event{Time: 1}).Kind)

	both := start(1, 10)
	both.Buff = 1
	assert.Equal(t, SignalStart, Classify(both).Kind)
}

func TestBuffEventJSON(t *testing.T) {
	raw, err := json.Marshal([]BuffEvent{Apply(10), Remove(20)})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"Apply":10},{"Remove":20}]`, string(raw))

	var back []BuffEvent
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, []BuffEvent{Apply(10), Remove(20)}, back)

	var bad BuffEvent
	assert.Error(t, json.Unmarshal([]byte(`{"Stack":1}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"Apply":1,"Remove":2}`), &bad))
}
