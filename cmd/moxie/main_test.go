package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moxie/internal/evtc"
	"moxie/internal/report"
)

func writeLog(t *testing.T, events ...evtc.Event) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, evtc.Write(&buf, &evtc.Encounter{
		Header: evtc.Header{BuildDate: "20180508", Revision: 1},
		Agents: []evtc.Agent{{Addr: 7, Kind: evtc.AgentPlayer, Name: "Moxie"}},
		Skills: []evtc.Skill{{ID: 40183, Name: "Primordial Stance"}, {ID: 10, Name: "Fireball"}},
		Events: events,
	}))
	path := filepath.Join(t.TempDir(), "log.evtc")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestRender(t *testing.T) {
	path := writeLog(t,
		evtc.Event{Time: 10, SrcAgent: 7, SkillID: 40183, Activation: evtc.ActivationNormal},
		evtc.Event{Time: 20, SrcAgent: 7, SkillID: 40183, Activation: evtc.ActivationCancelFire},
	)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"render", path}, &stdout, &stderr))

	var rep report.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rep))
	assert.Equal(t, uint64(10), rep.Start)
	assert.Equal(t, uint64(20), rep.End)
	// Two zero-length instant casts plus the resolved 10..20 cast.
	assert.Len(t, rep.Casts, 3)
	assert.Equal(t, "Primordial Stance", rep.Skills[40183])
}

func TestRender_InstantFlag(t *testing.T) {
	path := writeLog(t,
		evtc.Event{Time: 10, SrcAgent: 7, SkillID: 40183, Activation: evtc.ActivationNormal},
		evtc.Event{Time: 20, SrcAgent: 7, SkillID: 40183, Activation: evtc.ActivationCancelFire},
	)

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"render", "-instant", "10", "-pretty", path}, &stdout, &stderr))

	var rep report.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rep))
	require.Len(t, rep.Casts, 1)
	assert.Equal(t, uint64(10), rep.Casts[0].Start)
	assert.Equal(t, uint64(20), rep.Casts[0].End)
	assert.Contains(t, stdout.String(), "\n  \"start\": 10")
}

func TestRender_Failures(t *testing.T) {
	empty := writeLog(t)
	garbage := filepath.Join(t.TempDir(), "garbage.evtc")
	require.NoError(t, os.WriteFile(garbage, []byte("garbage"), 0o600))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"render", empty}, &stdout, &stderr)
	require.ErrorIs(t, err, report.ErrEmptyEncounter)
	assert.Contains(t, err.Error(), "empty_encounter")

	err = run(context.Background(), []string{"render", garbage}, &stdout, &stderr)
	require.ErrorIs(t, err, report.ErrDecode)
	assert.Empty(t, stdout.String())
}

func TestRun_Usage(t *testing.T) {
	cases := [][]string{
		nil,
		{"explode"},
		{"render"},
		{"render", "-instant"},
		{"submit"},
		{"show", "a", "b"},
		{"migrate", "now"},
	}
	for _, args := range cases {
		var stdout, stderr bytes.Buffer
		err := run(context.Background(), args, &stdout, &stderr)
		assert.ErrorIs(t, err, errUsage, "args %v", args)
		assert.NotEmpty(t, stderr.String(), "args %v", args)
	}
}

func TestParseSkillIDs(t *testing.T) {
	ids, err := parseSkillIDs("40183, 5539,")
	require.NoError(t, err)
	assert.Equal(t, []uint32{40183, 5539}, ids)

	_, err = parseSkillIDs(",")
	assert.Error(t, err)
	_, err = parseSkillIDs("4294967296")
	assert.Error(t, err)
}
