// Package evtc decodes binary encounter records produced by the combat log recorder.
package evtc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Record sizes in bytes.
const (
	headerSize = 16
	agentSize  = 96
	skillSize  = 68
	eventSize  = 64
	nameSize   = 64

	eliteNonPlayer = 0xFFFFFFFF
	gadgetMarker   = 0xFFFF
)

var magic = []byte("EVTC")

// ErrMalformed is returned for any record that cannot be decoded.
var ErrMalformed = errors.New("malformed encounter record")

// Parse decodes a raw (uncompressed) encounter record.
func Parse(data []byte) (*Encounter, error) {
	r := &cursor{buf: data}

	header, err := parseHeader(r)
	if err != nil {
		return nil, err
	}

	agentCount, err := r.u32("agent count")
	if err != nil {
		return nil, err
	}
	agents := make([]Agent, 0, min(int(agentCount), r.remaining()/agentSize))
	for i := uint32(0); i < agentCount; i++ {
		raw, err := r.take(agentSize, "agent")
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", i, err)
		}
		agents = append(agents, decodeAgent(raw))
	}

	skillCount, err := r.u32("skill count")
	if err != nil {
		return nil, err
	}
	skills := make([]Skill, 0, min(int(skillCount), r.remaining()/skillSize))
	for i := uint32(0); i < skillCount; i++ {
		raw, err := r.take(skillSize, "skill")
		if err != nil {
			return nil, fmt.Errorf("skill %d: %w", i, err)
		}
		skills = append(skills, Skill{
			ID:   binary.LittleEndian.Uint32(raw[0:4]),
			Name: cString(raw[4 : 4+nameSize]),
		})
	}

	if r.remaining()%eventSize != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d events",
			ErrMalformed, r.remaining()%eventSize, r.remaining()/eventSize)
	}

	decode := decodeEventRev1
	if header.Revision == 0 {
		decode = decodeEventRev0
	}
	events := make([]Event, 0, r.remaining()/eventSize)
	for r.remaining() > 0 {
		raw, _ := r.take(eventSize, "event")
		events = append(events, decode(raw))
	}

	return &Encounter{
		Header: header,
		Agents: agents,
		Skills: skills,
		Events: events,
	}, nil
}

func parseHeader(r *cursor) (Header, error) {
	raw, err := r.take(headerSize, "header")
	if err != nil {
		return Header{}, err
	}
	if !bytes.Equal(raw[0:4], magic) {
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrMalformed, raw[0:4])
	}
	rev := raw[12]
	if rev > 1 {
		return Header{}, fmt.Errorf("%w: unsupported revision %d", ErrMalformed, rev)
	}
	return Header{
		BuildDate: string(raw[4:12]),
		Revision:  rev,
		BossID:    binary.LittleEndian.Uint16(raw[13:15]),
	}, nil
}

func decodeAgent(raw []byte) Agent {
	le := binary.LittleEndian
	prof := le.Uint32(raw[8:12])
	elite := le.Uint32(raw[12:16])

	a := Agent{
		Addr:          le.Uint64(raw[0:8]),
		Toughness:     int16(le.Uint16(raw[16:18])),
		Concentration: int16(le.Uint16(raw[18:20])),
		Healing:       int16(le.Uint16(raw[20:22])),
		HitboxWidth:   int16(le.Uint16(raw[22:24])),
		Condition:     int16(le.Uint16(raw[24:26])),
		HitboxHeight:  int16(le.Uint16(raw[26:28])),
	}
	names := splitNames(raw[28 : 28+nameSize])

	switch {
	case elite != eliteNonPlayer:
		a.Kind = AgentPlayer
		a.Profession = prof
		a.EliteSpec = elite
		a.Name = names[0]
		a.Account = names[1]
		a.Subgroup = names[2]
	case prof>>16 == gadgetMarker:
		a.Kind = AgentGadget
		a.SpeciesID = uint16(prof & 0xFFFF)
		a.Name = names[0]
	default:
		a.Kind = AgentNPC
		a.SpeciesID = uint16(prof & 0xFFFF)
		a.Name = names[0]
	}
	return a
}

func decodeEventRev1(raw []byte) Event {
	le := binary.LittleEndian
	return Event{
		Time:            le.Uint64(raw[0:8]),
		SrcAgent:        le.Uint64(raw[8:16]),
		DstAgent:        le.Uint64(raw[16:24]),
		Value:           int32(le.Uint32(raw[24:28])),
		BuffDmg:         int32(le.Uint32(raw[28:32])),
		OverstackValue:  le.Uint32(raw[32:36]),
		SkillID:         le.Uint32(raw[36:40]),
		SrcInstID:       le.Uint16(raw[40:42]),
		DstInstID:       le.Uint16(raw[42:44]),
		SrcMasterInstID: le.Uint16(raw[44:46]),
		DstMasterInstID: le.Uint16(raw[46:48]),
		IFF:             raw[48],
		Buff:            raw[49],
		Result:          raw[50],
		Activation:      activationFromByte(raw[51]),
		BuffRemove:      BuffRemove(raw[52]),
		IsNinety:        raw[53] != 0,
		IsFifty:         raw[54] != 0,
		IsMoving:        raw[55] != 0,
		StateChange:     StateChange(raw[56]),
		IsFlanking:      raw[57] != 0,
		IsShields:       raw[58] != 0,
		IsOffcycle:      raw[59] != 0,
	}
}

// decodeEventRev0 reads the legacy layout: 16-bit overstack and skill id,
// no destination master id, nine reserved bytes before the flag block.
func decodeEventRev0(raw []byte) Event {
	le := binary.LittleEndian
	return Event{
		Time:            le.Uint64(raw[0:8]),
		SrcAgent:        le.Uint64(raw[8:16]),
		DstAgent:        le.Uint64(raw[16:24]),
		Value:           int32(le.Uint32(raw[24:28])),
		BuffDmg:         int32(le.Uint32(raw[28:32])),
		OverstackValue:  uint32(le.Uint16(raw[32:34])),
		SkillID:         uint32(le.Uint16(raw[34:36])),
		SrcInstID:       le.Uint16(raw[36:38]),
		DstInstID:       le.Uint16(raw[38:40]),
		SrcMasterInstID: le.Uint16(raw[40:42]),
		IFF:             raw[51],
		Buff:            raw[52],
		Result:          raw[53],
		Activation:      activationFromByte(raw[54]),
		BuffRemove:      BuffRemove(raw[55]),
		IsNinety:        raw[56] != 0,
		IsFifty:         raw[57] != 0,
		IsMoving:        raw[58] != 0,
		StateChange:     StateChange(raw[59]),
		IsFlanking:      raw[60] != 0,
		IsShields:       raw[61] != 0,
	}
}

// splitNames splits a NUL-separated name block into exactly three parts.
func splitNames(raw []byte) [3]string {
	var out [3]string
	parts := bytes.SplitN(raw, []byte{0}, 4)
	for i := 0; i < len(parts) && i < 3; i++ {
		out[i] = string(parts[i])
	}
	return out
}

func cString(raw []byte) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

// cursor is a bounds-checked forward reader over the record bytes.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}

func (c *cursor) take(n int, what string) ([]byte, error) {
	if c.remaining() < n {
		return nil, fmt.Errorf("%w: truncated %s at offset %d (need %d bytes, have %d)",
			ErrMalformed, what, c.off, n, c.remaining())
	}
	out := c.buf[c.off : c.off+n]
	c.off += n
	return out, nil
}

func (c *cursor) u32(what string) (uint32, error) {
	raw, err := c.take(4, what)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}
