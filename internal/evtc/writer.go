package evtc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Write encodes enc in the record layout selected by enc.Header.Revision.
// Names longer than the fixed 64-byte fields are truncated.
func Write(w io.Writer, enc *Encounter) error {
	rev := enc.Header.Revision
	if rev > 1 {
		return fmt.Errorf("write header: unsupported revision %d", rev)
	}

	size := headerSize + 4 + len(enc.Agents)*agentSize + 4 + len(enc.Skills)*skillSize + len(enc.Events)*eventSize
	buf := make([]byte, 0, size)
	le := binary.LittleEndian

	header := make([]byte, headerSize)
	copy(header[0:4], magic)
	copy(header[4:12], enc.Header.BuildDate)
	header[12] = rev
	le.PutUint16(header[13:15], enc.Header.BossID)
	buf = append(buf, header...)

	buf = le.AppendUint32(buf, uint32(len(enc.Agents)))
	for _, a := range enc.Agents {
		buf = append(buf, encodeAgent(a)...)
	}

	buf = le.AppendUint32(buf, uint32(len(enc.Skills)))
	for _, s := range enc.Skills {
		raw := make([]byte, skillSize)
		le.PutUint32(raw[0:4], s.ID)
		copy(raw[4:4+nameSize-1], s.Name)
		buf = append(buf, raw...)
	}

	encode := encodeEventRev1
	if rev == 0 {
		encode = encodeEventRev0
	}
	for _, e := range enc.Events {
		buf = append(buf, encode(e)...)
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write encounter: %w", err)
	}
	return nil
}

func encodeAgent(a Agent) []byte {
	le := binary.LittleEndian
	raw := make([]byte, agentSize)
	le.PutUint64(raw[0:8], a.Addr)

	var prof, elite uint32
	switch a.Kind {
	case AgentPlayer:
		prof, elite = a.Profession, a.EliteSpec
	case AgentGadget:
		prof, elite = gadgetMarker<<16|uint32(a.SpeciesID), eliteNonPlayer
	default:
		prof, elite = uint32(a.SpeciesID), eliteNonPlayer
	}
	le.PutUint32(raw[8:12], prof)
	le.PutUint32(raw[12:16], elite)
	le.PutUint16(raw[16:18], uint16(a.Toughness))
	le.PutUint16(raw[18:20], uint16(a.Concentration))
	le.PutUint16(raw[20:22], uint16(a.Healing))
	le.PutUint16(raw[22:24], uint16(a.HitboxWidth))
	le.PutUint16(raw[24:26], uint16(a.Condition))
	le.PutUint16(raw[26:28], uint16(a.HitboxHeight))

	name := a.Name
	if a.Kind == AgentPlayer {
		name = a.Name + "\x00" + a.Account + "\x00" + a.Subgroup
	}
	copy(raw[28:28+nameSize-1], name)
	return raw
}

func encodeEventRev1(e Event) []byte {
	le := binary.LittleEndian
	raw := make([]byte, eventSize)
	le.PutUint64(raw[0:8], e.Time)
	le.PutUint64(raw[8:16], e.SrcAgent)
	le.PutUint64(raw[16:24], e.DstAgent)
	le.PutUint32(raw[24:28], uint32(e.Value))
	le.PutUint32(raw[28:32], uint32(e.BuffDmg))
	le.PutUint32(raw[32:36], e.OverstackValue)
	le.PutUint32(raw[36:40], e.SkillID)
	le.PutUint16(raw[40:42], e.SrcInstID)
	le.PutUint16(raw[42:44], e.DstInstID)
	le.PutUint16(raw[44:46], e.SrcMasterInstID)
	le.PutUint16(raw[46:48], e.DstMasterInstID)
	raw[48] = e.IFF
	raw[49] = e.Buff
	raw[50] = e.Result
	raw[51] = uint8(e.Activation)
	raw[52] = uint8(e.BuffRemove)
	raw[53] = boolByte(e.IsNinety)
	raw[54] = boolByte(e.IsFifty)
	raw[55] = boolByte(e.IsMoving)
	raw[56] = uint8(e.StateChange)
	raw[57] = boolByte(e.IsFlanking)
	raw[58] = boolByte(e.IsShields)
	raw[59] = boolByte(e.IsOffcycle)
	return raw
}

func encodeEventRev0(e Event) []byte {
	le := binary.LittleEndian
	raw := make([]byte, eventSize)
	le.PutUint64(raw[0:8], e.Time)
	le.PutUint64(raw[8:16], e.SrcAgent)
	le.PutUint64(raw[16:24], e.DstAgent)
	le.PutUint32(raw[24:28], uint32(e.Value))
	le.PutUint32(raw[28:32], uint32(e.BuffDmg))
	le.PutUint16(raw[32:34], uint16(e.OverstackValue))
	le.PutUint16(raw[34:36], uint16(e.SkillID))
	le.PutUint16(raw[36:38], e.SrcInstID)
	le.PutUint16(raw[38:40], e.DstInstID)
	le.PutUint16(raw[40:42], e.SrcMasterInstID)
	raw[51] = e.IFF
	raw[52] = e.Buff
	raw[53] = e.Result
	raw[54] = uint8(e.Activation)
	raw[55] = uint8(e.BuffRemove)
	raw[56] = boolByte(e.IsNinety)
	raw[57] = boolByte(e.IsFifty)
	raw[58] = boolByte(e.IsMoving)
	raw[59] = uint8(e.StateChange)
	raw[60] = boolByte(e.IsFlanking)
	raw[61] = boolByte(e.IsShields)
	return raw
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
