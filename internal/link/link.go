// Package link implements the connected-mode LAPB state machine on top of
// decoded AX.25 frames: SABM(E)/DISC/UA/DM handshakes, mod-8 I-frame
// sequencing with a sliding window, RR/RNR/REJ acknowledgement, and the
// T1/T3 timer discipline that drives retransmission and keepalive polling.
//
// A Link never touches a transport or a clock on its own: every method
// takes the current time explicitly and returns the frames it wants sent,
// the payloads it has delivered, and the status events the caller should
// surface. That keeps the state machine a pure function of (state, input,
// time) and lets it be driven from tests without a real socket.
package link

import (
	"time"

	"github.com/kc3smw/ax25term/internal/ax25"
)

// StatusKind classifies an Event surfaced by the link.
type StatusKind int

const (
	StatusConnecting StatusKind = iota
	StatusConnected
	StatusDisconnected
	StatusPeerDisconnected
	StatusLinkLost
	StatusConnectTimedOut
	StatusProtocolError
)

// Event is one status notification the session layer should surface to the
// terminal (a printed banner, a prompt change, and so on).
type Event struct {
	Kind StatusKind
	Err  error
}

// Effects is everything a Link method produced: raw frames to hand the
// transport, payloads delivered to the user, and status events.
type Effects struct {
	Outbound  [][]byte
	Delivered [][]byte
	Status    []Event
}

func (e *Effects) send(raw []byte, err error) {
	if err != nil {
		e.Status = append(e.Status, Event{Kind: StatusProtocolError, Err: err})
		return
	}
	e.Outbound = append(e.Outbound, raw)
}

func (e *Effects) merge(other Effects) {
	e.Outbound = append(e.Outbound, other.Outbound...)
	e.Delivered = append(e.Delivered, other.Delivered...)
	e.Status = append(e.Status, other.Status...)
}

// unackedFrame is one I-frame still awaiting acknowledgement.
type unackedFrame struct {
	ns      uint8
	payload []byte
}

// Link is one connected-mode session to a single peer. It is not safe for
// concurrent use; the session engine owns it from a single goroutine.
type Link struct {
	mycall ax25.Callsign
	cfg    Config

	state State
	peer  ax25.Callsign
	digis []ax25.Digipeater

	vs, vr, va uint8

	unacked      []unackedFrame
	pendingLines [][]byte
	peerBusy     bool

	// attemptCount tracks the SABM(E)/DISC retry budget while
	// AWAITING_CONNECT or AWAITING_RELEASE; retryCount tracks I-frame/poll
	// retransmission while CONNECTED. They are distinct because the
	// SABME->SABM fallback does not consume a retry .
	attemptCount     int
	retryCount       int
	sabmFallbackUsed bool

	t1       *Timer
	t3       *Timer
	ackTimer *Timer
}

// New creates a Link in the DISCONNECTED state for the given local station.
func New(mycall ax25.Callsign, cfg Config) *Link {
	cfg = cfg.Clamped()
	return &Link{
		mycall:   mycall,
		cfg:      cfg,
		state:    StateDisconnected,
		t1:       NewTimer(cfg.T1),
		t3:       NewTimer(cfg.T3),
		ackTimer: NewTimer(cfg.AckCoalesce),
	}
}

// State reports the current LAPB state.
func (l *Link) State() State { return l.state }

// Peer reports the connected (or connecting) peer's callsign.
func (l *Link) Peer() ax25.Callsign { return l.peer }

// Sequence reports V(S), V(R), V(A) for status display and tests.
func (l *Link) Sequence() (vs, vr, va uint8) { return l.vs, l.vr, l.va }

// Digis reports the digipeater path of the current or most recent peer.
func (l *Link) Digis() []ax25.Digipeater { return l.digis }

// N2 reports the current retry/attempt budget.
func (l *Link) N2() int { return l.cfg.N2 }

// SetN2 changes the retry/attempt budget used by subsequent connect,
// release, and retransmit cycles, clamped to 1-10.
func (l *Link) SetN2(n2 int) {
	if n2 < 1 {
		n2 = 1
	}
	if n2 > 10 {
		n2 = 10
	}
	l.cfg.N2 = n2
}

func (l *Link) chain() ax25.AddressChain {
	return ax25.AddressChain{Dest: l.peer, Src: l.mycall, Digis: l.digis}
}

func seqSub(a, b uint8) uint8 {
	return uint8((int(a) - int(b) + 8) % 8)
}

// precedes reports whether sequence number a lies strictly behind b by no
// more than window frames, i.e. whether an N(R) of b acknowledges an N(S)
// of a. a == b (distance 0) is never an ack: N(R) acknowledges everything
// up to but not including N(R) itself.
func precedes(a, b uint8, window uint8) bool {
	d := seqSub(b, a)
	return d >= 1 && d <= window
}

// NextDeadline returns the earliest deadline among the link's running
// timers, or the zero Time if none are running. The session dispatcher
// selects on this to know when to call Tick.
func (l *Link) NextDeadline() time.Time {
	var deadline time.Time
	for _, t := range []*Timer{l.t1, l.t3, l.ackTimer} {
		d := t.Deadline()
		if d.IsZero() {
			continue
		}
		if deadline.IsZero() || d.Before(deadline) {
			deadline = d
		}
	}
	return deadline
}

// Connect starts an outbound connection attempt, sending SABME first; a
// DM or FRMR response falls back to plain SABM without consuming a retry.
func (l *Link) Connect(now time.Time, peer ax25.Callsign, digis []ax25.Digipeater) Effects {
	var eff Effects
	if l.state != StateDisconnected {
		return eff
	}

	l.peer = peer
	l.digis = digis
	l.vs, l.vr, l.va = 0, 0, 0
	l.unacked = nil
	l.peerBusy = false
	l.attemptCount = 1
	l.sabmFallbackUsed = false
	l.state = StateAwaitingConnect

	raw, err := ax25.EncodeUFrame(l.chain(), true, ax25.CtrlSABME, true, nil)
	eff.send(raw, err)
	l.t1.Start(now)
	eff.Status = append(eff.Status, Event{Kind: StatusConnecting})
	return eff
}

// Disconnect requests release of the current link. It is idempotent: a
// second call while already releasing or disconnected emits nothing more,
// so invoking it twice in succession emits at most one DISC on the wire.
func (l *Link) Disconnect(now time.Time) Effects {
	var eff Effects
	switch l.state {
	case StateConnected:
		l.t1.Stop()
		l.t3.Stop()
		l.ackTimer.Stop()
		l.attemptCount = 1
		l.state = StateAwaitingRelease
		raw, err := ax25.EncodeUFrame(l.chain(), true, ax25.CtrlDISC, true, nil)
		eff.send(raw, err)
		l.t1.Start(now)
	case StateAwaitingConnect:
		l.t1.Stop()
		l.pendingLines = nil
		l.state = StateDisconnected
		eff.Status = append(eff.Status, Event{Kind: StatusDisconnected})
	default:
		// AWAITING_RELEASE or DISCONNECTED already: no-op.
	}
	return eff
}

// SendLine queues a line of user input for transmission as an I-frame. It
// is always accepted: a line typed before CONNECTED or while the window is
// full is queued and flushed automatically as capacity opens up.
func (l *Link) SendLine(now time.Time, payload []byte) Effects {
	l.pendingLines = append(l.pendingLines, payload)
	return l.trySendPending(now)
}

// trySendPending drains queued lines into I-frames while CONNECTED, the
// peer is not busy, and the outstanding window has room.
func (l *Link) trySendPending(now time.Time) Effects {
	var eff Effects
	if l.state != StateConnected || l.peerBusy {
		return eff
	}

	for len(l.pendingLines) > 0 && seqSub(l.vs, l.va) < l.cfg.WindowK {
		payload := l.pendingLines[0]
		l.pendingLines = l.pendingLines[1:]

		ns := l.vs
		l.vs = (l.vs + 1) % 8
		raw, err := ax25.EncodeIFrame(l.chain(), ns, l.vr, false, payload)
		if err != nil {
			eff.Status = append(eff.Status, Event{Kind: StatusProtocolError, Err: err})
			continue
		}
		l.unacked = append(l.unacked, unackedFrame{ns: ns, payload: payload})
		eff.Outbound = append(eff.Outbound, raw)
		l.t3.Stop()
		if !l.t1.IsRunning() {
			l.retryCount = 0
			l.t1.Start(now)
		}
	}
	return eff
}

// ackUpTo removes all unacked I-frames acknowledged by N(R) and advances
// V(A) to N(R).
func (l *Link) ackUpTo(nr uint8) {
	kept := l.unacked[:0]
	for _, u := range l.unacked {
		if precedes(u.ns, nr, l.cfg.WindowK) {
			continue // acknowledged
		}
		kept = append(kept, u)
	}
	l.unacked = kept
	l.va = nr
}

// HandleFrame processes one inbound frame addressed to this station. The
// caller (the session engine) is responsible for routing only frames whose
// destination matches mycall, and for UNPROTO (UI) frames separately: UI
// frames never touch link state and must not reach HandleFrame.
func (l *Link) HandleFrame(now time.Time, f ax25.Frame) Effects {
	switch l.state {
	case StateDisconnected:
		return l.handleDisconnected(now, f)
	case StateAwaitingConnect:
		return l.handleAwaitingConnect(now, f)
	case StateConnected:
		return l.handleConnected(now, f)
	case StateAwaitingRelease:
		return l.handleAwaitingRelease(now, f)
	}
	return Effects{}
}

func (l *Link) handleDisconnected(now time.Time, f ax25.Frame) Effects {
	var eff Effects
	if f.Ctrl.Type != ax25.FrameU {
		return eff
	}

	switch f.Ctrl.UType {
	case ax25.CtrlSABM, ax25.CtrlSABME:
		l.peer = f.Chain.Src
		l.digis = nil
		l.vs, l.vr, l.va = 0, 0, 0
		l.unacked = nil
		l.peerBusy = false
		l.state = StateConnected
		l.retryCount = 0
		raw, err := ax25.EncodeUFrame(l.chain(), false, ax25.CtrlUA, true, nil)
		eff.send(raw, err)
		l.t3.Start(now)
		eff.Status = append(eff.Status, Event{Kind: StatusConnected})
	case ax25.CtrlDISC:
		raw, err := ax25.EncodeUFrame(ax25.AddressChain{Dest: f.Chain.Src, Src: l.mycall}, false, ax25.CtrlDM, f.Ctrl.PF, nil)
		eff.send(raw, err)
	default:
		raw, err := ax25.EncodeUFrame(ax25.AddressChain{Dest: f.Chain.Src, Src: l.mycall}, false, ax25.CtrlDM, f.Ctrl.PF, nil)
		eff.send(raw, err)
	}
	return eff
}

func (l *Link) handleAwaitingConnect(now time.Time, f ax25.Frame) Effects {
	var eff Effects
	if f.Ctrl.Type != ax25.FrameU {
		return eff
	}

	switch f.Ctrl.UType {
	case ax25.CtrlUA:
		l.state = StateConnected
		l.vs, l.vr, l.va = 0, 0, 0
		l.retryCount = 0
		l.t1.Stop()
		l.t3.Start(now)
		eff.Status = append(eff.Status, Event{Kind: StatusConnected})
		eff.merge(l.trySendPending(now))
	case ax25.CtrlDM, ax25.CtrlFRMR:
		// A DM/FRMR answering the first (SABME) attempt falls through to
		// SABM without consuming an n2 retry (historical fallback quirk).
		if !l.sabmFallbackUsed && l.attemptCount == 1 {
			l.sabmFallbackUsed = true
			raw, err := ax25.EncodeUFrame(l.chain(), true, ax25.CtrlSABM, true, nil)
			eff.send(raw, err)
			l.t1.Start(now)
			return eff
		}
		l.t1.Stop()
		l.pendingLines = nil
		l.state = StateDisconnected
		eff.Status = append(eff.Status, Event{Kind: StatusPeerDisconnected, Err: ErrPeerRefused})
	}
	return eff
}

func (l *Link) handleConnected(now time.Time, f ax25.Frame) Effects {
	var eff Effects

	switch f.Ctrl.Type {
	case ax25.FrameI:
		l.ackUpTo(f.Ctrl.NR)
		if f.Ctrl.NS == l.vr {
			eff.Delivered = append(eff.Delivered, f.Info)
			l.vr = (l.vr + 1) % 8
			if f.Ctrl.PF {
				l.ackTimer.Stop()
				raw, err := ax25.EncodeSFrame(l.chain(), false, ax25.SRR, l.vr, true)
				eff.send(raw, err)
			} else {
				l.ackTimer.Start(now)
			}
		} else {
			raw, err := ax25.EncodeSFrame(l.chain(), !f.Ctrl.PF, ax25.SREJ, l.vr, f.Ctrl.PF)
			eff.send(raw, err)
		}
		l.retransmitTimerAfterAck(now)
		eff.merge(l.trySendPending(now))

	case ax25.FrameS:
		l.ackUpTo(f.Ctrl.NR)
		l.peerBusy = f.Ctrl.SCode == ax25.SRNR

		switch f.Ctrl.SCode {
		case ax25.SREJ:
			for _, u := range l.unacked {
				raw, err := ax25.EncodeIFrame(l.chain(), u.ns, l.vr, false, u.payload)
				eff.send(raw, err)
			}
			if len(l.unacked) > 0 {
				l.retryCount = 0
				l.t1.Start(now)
			}
		default:
			if f.Ctrl.PF {
				raw, err := ax25.EncodeSFrame(l.chain(), false, ax25.SRR, l.vr, true)
				eff.send(raw, err)
			}
			l.retransmitTimerAfterAck(now)
		}
		eff.merge(l.trySendPending(now))

	case ax25.FrameU:
		switch f.Ctrl.UType {
		case ax25.CtrlDISC:
			raw, err := ax25.EncodeUFrame(l.chain(), false, ax25.CtrlUA, f.Ctrl.PF, nil)
			eff.send(raw, err)
			l.resetToDisconnected()
			eff.Status = append(eff.Status, Event{Kind: StatusPeerDisconnected})
		case ax25.CtrlDM:
			l.resetToDisconnected()
			eff.Status = append(eff.Status, Event{Kind: StatusPeerDisconnected})
		case ax25.CtrlFRMR:
			if l.cfg.FrmrFatal {
				l.resetToDisconnected()
				eff.Status = append(eff.Status, Event{Kind: StatusProtocolError, Err: ErrProtocolError})
			} else {
				l.resetToDisconnected()
			}
		case ax25.CtrlSABM, ax25.CtrlSABME:
			// Peer is re-establishing; accept it, resetting sequence state.
			l.vs, l.vr, l.va = 0, 0, 0
			l.unacked = nil
			l.pendingLines = nil
			l.peerBusy = false
			l.retryCount = 0
			raw, err := ax25.EncodeUFrame(l.chain(), false, ax25.CtrlUA, true, nil)
			eff.send(raw, err)
			l.t3.Start(now)
		}
	}

	return eff
}

func (l *Link) retransmitTimerAfterAck(now time.Time) {
	if len(l.unacked) == 0 {
		l.t1.Stop()
		if l.state == StateConnected {
			l.t3.Start(now)
		}
	} else {
		l.retryCount = 0
		l.t1.Start(now)
	}
}

func (l *Link) resetToDisconnected() {
	l.t1.Stop()
	l.t3.Stop()
	l.ackTimer.Stop()
	l.unacked = nil
	l.pendingLines = nil
	l.state = StateDisconnected
}

func (l *Link) handleAwaitingRelease(now time.Time, f ax25.Frame) Effects {
	var eff Effects
	if f.Ctrl.Type != ax25.FrameU {
		return eff
	}
	switch f.Ctrl.UType {
	case ax25.CtrlUA, ax25.CtrlDM:
		l.resetToDisconnected()
		eff.Status = append(eff.Status, Event{Kind: StatusDisconnected})
	}
	return eff
}

// Tick checks the link's timers against now and fires whichever have
// expired: the ack-coalesce delay, T1 (retransmit/connect/release retry),
// and T3 (idle keepalive).
func (l *Link) Tick(now time.Time) Effects {
	var eff Effects

	if l.ackTimer.HasExpired(now) {
		l.ackTimer.Stop()
		raw, err := ax25.EncodeSFrame(l.chain(), true, ax25.SRR, l.vr, false)
		eff.send(raw, err)
	}

	if l.t1.HasExpired(now) {
		eff.merge(l.onT1Expiry(now))
	}

	if l.t3.HasExpired(now) {
		eff.merge(l.onT3Expiry(now))
	}

	return eff
}

func (l *Link) onT1Expiry(now time.Time) Effects {
	var eff Effects

	switch l.state {
	case StateAwaitingConnect:
		if l.attemptCount < l.cfg.N2 {
			l.attemptCount++
			raw, err := ax25.EncodeUFrame(l.chain(), true, ax25.CtrlSABM, true, nil)
			eff.send(raw, err)
			l.t1.Start(now)
		} else {
			l.t1.Stop()
			l.pendingLines = nil
			l.state = StateDisconnected
			eff.Status = append(eff.Status, Event{Kind: StatusConnectTimedOut, Err: ErrConnectTimedOut})
		}

	case StateConnected:
		l.retryCount++
		if l.retryCount > l.cfg.N2 {
			l.resetToDisconnected()
			eff.Status = append(eff.Status, Event{Kind: StatusLinkLost, Err: ErrLinkLost})
			return eff
		}
		if len(l.unacked) > 0 {
			oldest := l.unacked[0]
			raw, err := ax25.EncodeIFrame(l.chain(), oldest.ns, l.vr, true, oldest.payload)
			eff.send(raw, err)
		} else {
			raw, err := ax25.EncodeSFrame(l.chain(), true, ax25.SRR, l.vr, true)
			eff.send(raw, err)
		}
		l.t1.Start(now)

	case StateAwaitingRelease:
		if l.attemptCount < l.cfg.N2 {
			l.attemptCount++
			raw, err := ax25.EncodeUFrame(l.chain(), true, ax25.CtrlDISC, true, nil)
			eff.send(raw, err)
			l.t1.Start(now)
		} else {
			l.resetToDisconnected()
			eff.Status = append(eff.Status, Event{Kind: StatusDisconnected})
		}
	}

	return eff
}

func (l *Link) onT3Expiry(now time.Time) Effects {
	var eff Effects
	l.t3.Stop()
	if l.state != StateConnected {
		return eff
	}
	raw, err := ax25.EncodeSFrame(l.chain(), true, ax25.SRR, l.vr, true)
	eff.send(raw, err)
	if !l.t1.IsRunning() {
		l.retryCount = 0
		l.t1.Start(now)
	}
	return eff
}

// PauseKeepalive suspends T3 without losing its remaining time: a pending
// pager prompt pauses the idle poll rather than resetting or cancelling it.
func (l *Link) PauseKeepalive(now time.Time) {
	l.t3.Pause(now)
}

// ResumeKeepalive continues a paused T3 from where it left off.
func (l *Link) ResumeKeepalive(now time.Time) {
	l.t3.Resume(now)
}
