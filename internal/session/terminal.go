package session

import "github.com/kc3smw/ax25term/internal/ax25"

// StatusKind is one of the status events the engine surfaces to the
// terminal layer, matching the on_status event vocabulary: connecting,
// connected, disconnected, peer_disconnected, link_lost,
// connect_timed_out, transport_down, protocol_error, unproto_sent, plus
// the supplemented clear/help/status/no-command events the terminal
// layer renders itself.
type StatusKind string

const (
	StatusConnecting       StatusKind = "connecting"
	StatusConnected        StatusKind = "connected"
	StatusDisconnected     StatusKind = "disconnected"
	StatusPeerDisconnected StatusKind = "peer_disconnected"
	StatusLinkLost         StatusKind = "link_lost"
	StatusConnectTimedOut  StatusKind = "connect_timed_out"
	StatusTransportDown    StatusKind = "transport_down"
	StatusProtocolError    StatusKind = "protocol_error"
	StatusUnprotoSent      StatusKind = "unproto_sent"
	StatusUnprotoEntered   StatusKind = "unproto_entered"
	StatusUnprotoExited    StatusKind = "unproto_exited"
	StatusClear            StatusKind = "clear"
	StatusHelp             StatusKind = "help"
	StatusInfo             StatusKind = "status"
	StatusNoCommand        StatusKind = "no_command"
)

// Terminal is the narrow upstream collaborator the engine drives: a TTY
// front end, a test harness, or anything else that can render text and
// hand back typed lines. The engine never reads or writes a TTY directly.
type Terminal interface {
	// OnRX is called for each delivered I-frame payload and for each
	// inbound UI frame, in wire order.
	OnRX(text []byte, source ax25.Callsign, pid byte)

	// OnStatus reports a status event with a short human-readable detail
	// string (e.g. the peer callsign, an error message, or empty).
	OnStatus(kind StatusKind, detail string)

	// Input returns the channel of typed lines; it is closed when the
	// terminal has nothing more to offer (EOF, /quit already handled
	// locally, or the underlying reader failed).
	Input() <-chan string

	// PagerPending reports whether a remote pager prompt is currently on
	// screen, queried before every T3-driven keepalive.
	PagerPending() bool
}
