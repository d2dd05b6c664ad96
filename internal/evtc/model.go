package evtc

// Activation mirrors the is_activation byte of a combat event.
type Activation uint8

const (
	ActivationNone         Activation = 0
	ActivationNormal       Activation = 1
	ActivationQuickness    Activation = 2
	ActivationCancelFire   Activation = 3 // cancelled after the skill's effect went out
	ActivationCancelCancel Activation = 4 // cancelled before any effect
	ActivationReset        Activation = 5
	ActivationUnknown      Activation = 0xFF
)

// activationFromByte folds out-of-range wire values into ActivationUnknown.
func activationFromByte(b uint8) Activation {
	if b <= uint8(ActivationReset) {
		return Activation(b)
	}
	return ActivationUnknown
}

func (a Activation) String() string {
	switch a {
	case ActivationNone:
		return "none"
	case ActivationNormal:
		return "normal"
	case ActivationQuickness:
		return "quickness"
	case ActivationCancelFire:
		return "cancel_fire"
	case ActivationCancelCancel:
		return "cancel_cancel"
	case ActivationReset:
		return "reset"
	default:
		return "unknown"
	}
}

// BuffRemove mirrors the is_buffremove byte. Only None vs. anything else matters downstream.
type BuffRemove uint8

const (
	BuffRemoveNone   BuffRemove = 0
	BuffRemoveAll    BuffRemove = 1
	BuffRemoveSingle BuffRemove = 2
	BuffRemoveManual BuffRemove = 3
)

// Removed reports whether the event removes a buff stack.
func (r BuffRemove) Removed() bool {
	return r != BuffRemoveNone
}

// StateChange mirrors the is_statechange byte. Zero is a plain combat event.
type StateChange uint8

const StateChangeNone StateChange = 0

// AgentKind is the role tag of an agent table entry.
type AgentKind uint8

const (
	AgentPlayer AgentKind = iota
	AgentNPC
	AgentGadget
)

func (k AgentKind) String() string {
	switch k {
	case AgentPlayer:
		return "player"
	case AgentNPC:
		return "npc"
	default:
		return "gadget"
	}
}

// Header holds the fixed-size preamble of an encounter record.
type Header struct {
	BuildDate string // e.g. "20180508"
	Revision  uint8
	BossID    uint16
}

// Agent is one entry of the agent table.
type Agent struct {
	Addr          uint64 // matched against Event.SrcAgent
	Kind          AgentKind
	Profession    uint32 // players only
	EliteSpec     uint32 // players only
	SpeciesID     uint16 // NPC species or gadget id
	Toughness     int16
	Concentration int16
	Healing       int16
	Condition     int16
	HitboxWidth   int16
	HitboxHeight  int16
	Name          string // character name for players
	Account       string // players only, e.g. ":Name.1234"
	Subgroup      string // players only
}

// IsPlayer reports whether the agent carries the player role tag.
func (a Agent) IsPlayer() bool {
	return a.Kind == AgentPlayer
}

// Skill is one entry of the skill table.
type Skill struct {
	ID   uint32
	Name string
}

// Event is a single combat record. Field names follow the record layout.
type Event struct {
	Time            uint64
	SrcAgent        uint64
	DstAgent        uint64
	Value           int32
	BuffDmg         int32
	OverstackValue  uint32
	SkillID         uint32
	SrcInstID       uint16
	DstInstID       uint16
	SrcMasterInstID uint16
	DstMasterInstID uint16
	IFF             uint8
	Buff            uint8 // nonzero when the event is a buff application
	Result          uint8
	Activation      Activation
	BuffRemove      BuffRemove
	IsNinety        bool
	IsFifty         bool
	IsMoving        bool
	StateChange     StateChange
	IsFlanking      bool
	IsShields       bool
	IsOffcycle      bool
}

// Encounter is the fully decoded record.
type Encounter struct {
	Header Header
	Agents []Agent
	Skills []Skill
	Events []Event
}
