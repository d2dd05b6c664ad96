package timeline

import "moxie/internal/evtc"

// SignalKind is the single interpretation assigned to an event.
type SignalKind uint8

const (
	SignalNone SignalKind = iota
	SignalStart
	SignalEnd
	SignalApply
	SignalRemove
)

// Signal is the classified form of one event.
type Signal struct {
	Kind  SignalKind
	Time  uint64
	Fired bool // only meaningful for SignalEnd
}

// Classify assigns exactly one interpretation to e. Activation is checked
// first and only for plain combat events; buff interpretation applies only
// when the event carries no activation signal.
func Classify(e evtc.Event) Signal {
	if s, ok := activationSignal(e); ok {
		return s
	}
	return buffSignal(e)
}

func activationSignal(e evtc.Event) (Signal, bool) {
	if e.StateChange != evtc.StateChangeNone {
		return Signal{}, false
	}
	switch e.Activation {
	case evtc.ActivationNormal, evtc.ActivationQuickness:
		return Signal{Kind: SignalStart, Time: e.Time}, true
	case evtc.ActivationCancelCancel:
		return Signal{Kind: SignalEnd, Time: e.Time, Fired: false}, true
	case evtc.ActivationCancelFire, evtc.ActivationReset:
		return Signal{Kind: SignalEnd, Time: e.Time, Fired: true}, true
	default:
		return Signal{}, false
	}
}

func buffSignal(e evtc.Event) Signal {
	if e.BuffRemove.Removed() {
		return Signal{Kind: SignalRemove, Time: e.Time}
	}
	if e.Buff != 0 {
		return Signal{Kind: SignalApply, Time: e.Time}
	}
	return Signal{Kind: SignalNone, Time: e.Time}
}
