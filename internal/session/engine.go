// Package session implements the session dispatcher (L4): the single
// cooperative loop that couples inbound decoded frames, link timers, and
// terminal input, and that exposes connect/disconnect/send-line/
// send-unproto operations driven by slash commands.
package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/kc3smw/ax25term/internal/ax25"
	"github.com/kc3smw/ax25term/internal/directory"
	"github.com/kc3smw/ax25term/internal/kiss"
	"github.com/kc3smw/ax25term/internal/link"
)

// Engine owns one Link, one Transport, and the terminal-facing state that
// doesn't belong in the LAPB machine: echo/CRLF/debug toggles, persistent
// UNPROTO mode, and the optional directory recorder.
type Engine struct {
	mycall    ax25.Callsign
	transport kiss.Transport
	deframer  *kiss.Deframer
	link      *link.Link
	term      Terminal
	logger    *log.Logger

	echo  bool
	crlf  bool
	debug bool

	unprotoMode  bool
	unprotoDest  ax25.Callsign
	unprotoDigis []ax25.Digipeater

	store   *directory.Store
	aliases *directory.AliasBook

	sessionID   string
	bytesSent   uint64
	bytesRecv   uint64
	pagerWasOn  bool
	requestQuit bool
}

// NewEngine creates an Engine around transport, using cfg for the link's
// tunables. The link starts DISCONNECTED.
func NewEngine(mycall ax25.Callsign, transport kiss.Transport, cfg link.Config, term Terminal, logger *log.Logger) *Engine {
	return &Engine{
		mycall:    mycall,
		transport: transport,
		deframer:  kiss.NewDeframer(4096),
		link:      link.New(mycall, cfg),
		term:      term,
		logger:    logger,
	}
}

// SetDirectory wires in the optional station directory; nil disables it.
func (e *Engine) SetDirectory(store *directory.Store) { e.store = store }

// SetAliasBook wires in the optional alias book /connect consults before
// falling back to treating its argument as a literal callsign.
func (e *Engine) SetAliasBook(book *directory.AliasBook) { e.aliases = book }

// SetCRLF toggles the outbound line terminator.
func (e *Engine) SetCRLF(on bool) { e.crlf = on }

// lineTerminator returns the configured outbound line ending.
func (e *Engine) lineTerminator() string {
	if e.crlf {
		return "\r\n"
	}
	return "\r"
}

// Run drives the cooperative loop until ctx is cancelled, the transport
// closes, or the terminal's input channel closes. Suspension points are
// exactly inbound socket bytes, the link's next timer deadline, and
// terminal input; ctx.Done is a fourth, added for orderly shutdown.
func (e *Engine) Run(ctx context.Context) error {
	inbound := e.transport.Inbound()
	input := e.term.Input()

	for {
		e.maybeSuppressKeepalive(time.Now())

		var timer *time.Timer
		var timerC <-chan time.Time
		if deadline := e.link.NextDeadline(); !deadline.IsZero() {
			d := time.Until(deadline)
			if d < 0 {
				d = 0
			}
			timer = time.NewTimer(d)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return ctx.Err()

		case chunk, ok := <-inbound:
			stopTimer(timer)
			if !ok {
				e.term.OnStatus(StatusTransportDown, "TNC connection closed")
				return link.ErrTransportDown
			}
			e.handleInboundBytes(chunk)

		case line, ok := <-input:
			stopTimer(timer)
			if !ok {
				return e.Quit(ctx)
			}
			e.handleInputLine(line)
			if e.requestQuit {
				return e.Quit(ctx)
			}

		case now := <-timerC:
			e.applyEffects(e.link.Tick(now))
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// maybeSuppressKeepalive pauses or resumes T3 as the terminal's pager
// state changes, so a paginated BBS screen never gets an unsolicited RR
// poll injected into it.
func (e *Engine) maybeSuppressKeepalive(now time.Time) {
	pending := e.term.PagerPending()
	if pending && !e.pagerWasOn {
		e.link.PauseKeepalive(now)
	} else if !pending && e.pagerWasOn {
		e.link.ResumeKeepalive(now)
	}
	e.pagerWasOn = pending
}

func (e *Engine) handleInboundBytes(chunk []byte) {
	e.deframer.Feed(chunk)
	for {
		kf, ok := e.deframer.Next()
		if !ok {
			return
		}
		if kf.Command != kiss.CmdDataFrame {
			continue
		}
		e.bytesRecv += uint64(len(kf.Payload))
		if e.debug && e.logger != nil {
			e.logger.Printf("[debug] RX %x", kf.Payload)
		}

		frame, err := ax25.Decode(kf.Payload)
		if err != nil {
			if e.logger != nil {
				e.logger.Printf("discarding malformed frame: %v", err)
			}
			continue
		}
		e.handleDecodedFrame(frame)
	}
}

func (e *Engine) handleDecodedFrame(f ax25.Frame) {
	if f.Ctrl.Type == ax25.FrameU && f.Ctrl.UType == ax25.CtrlUI {
		e.handleUI(f)
		return
	}
	if !f.Chain.Dest.Equal(e.mycall) {
		return
	}
	e.applyEffects(e.link.HandleFrame(time.Now(), f))
}

// handleUI surfaces every inbound UI frame to the terminal unconditionally,
// regardless of link state or whether persistent UNPROTO mode is active,
// and never touches link state.
func (e *Engine) handleUI(f ax25.Frame) {
	e.term.OnRX(f.Info, f.Chain.Src, f.PID)
	if e.store != nil {
		if err := e.store.RecordHeard(f.Chain.Src.String(), string(f.Info), time.Now()); err != nil && e.logger != nil {
			e.logger.Printf("directory: failed to record heard station %s: %v", f.Chain.Src, err)
		}
	}
}

func (e *Engine) applyEffects(eff link.Effects) {
	for _, raw := range eff.Outbound {
		e.sendRaw(raw)
	}
	for _, payload := range eff.Delivered {
		e.term.OnRX(payload, e.link.Peer(), ax25.PIDNoLayer3)
	}
	for _, ev := range eff.Status {
		e.handleLinkStatus(ev)
	}
}

func (e *Engine) sendRaw(raw []byte) {
	if e.debug && e.logger != nil {
		e.logger.Printf("[debug] TX %x", raw)
	}
	if err := e.transport.Send(kiss.Frame(raw)); err != nil {
		e.term.OnStatus(StatusTransportDown, err.Error())
		return
	}
	e.bytesSent += uint64(len(raw))
}

func (e *Engine) handleLinkStatus(ev link.Event) {
	switch ev.Kind {
	case link.StatusConnecting:
		e.term.OnStatus(StatusConnecting, e.link.Peer().String())
	case link.StatusConnected:
		e.sessionID = uuid.NewString()
		if e.store != nil {
			if err := e.store.OpenConnection(e.sessionID, e.link.Peer().String(), time.Now()); err != nil && e.logger != nil {
				e.logger.Printf("directory: failed to open connection record: %v", err)
			}
		}
		e.term.OnStatus(StatusConnected, e.link.Peer().String())
	case link.StatusDisconnected:
		e.closeConnectionRecord("normal")
		e.term.OnStatus(StatusDisconnected, "")
	case link.StatusPeerDisconnected:
		e.closeConnectionRecord("peer_disconnected")
		e.term.OnStatus(StatusPeerDisconnected, errDetail(ev.Err))
	case link.StatusLinkLost:
		e.closeConnectionRecord("link_lost")
		e.term.OnStatus(StatusLinkLost, errDetail(ev.Err))
	case link.StatusConnectTimedOut:
		e.closeConnectionRecord("connect_timed_out")
		e.term.OnStatus(StatusConnectTimedOut, errDetail(ev.Err))
	case link.StatusProtocolError:
		e.closeConnectionRecord("protocol_error")
		e.term.OnStatus(StatusProtocolError, errDetail(ev.Err))
	}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (e *Engine) closeConnectionRecord(outcome string) {
	if e.store == nil || e.sessionID == "" {
		return
	}
	if err := e.store.CloseConnection(e.sessionID, time.Now(), e.bytesSent, e.bytesRecv, outcome); err != nil && e.logger != nil {
		e.logger.Printf("directory: failed to close connection record: %v", err)
	}
	e.sessionID = ""
}

// handleInputLine routes one line of typed input per the session
// dispatcher rules: slash-commands are parsed and dispatched; plain lines
// go to the peer (CONNECTED), to the stored UNPROTO destination
// (persistent UNPROTO), or are queued by Link.SendLine itself while not
// yet CONNECTED.
func (e *Engine) handleInputLine(line string) {
	if e.echo {
		e.term.OnStatus(StatusInfo, line)
	}

	if len(line) > 0 && line[0] == '/' {
		e.dispatchCommand(ParseCommand(line))
		return
	}

	if e.unprotoMode {
		e.sendUnproto(e.unprotoDest, e.unprotoDigis, line)
		return
	}

	e.applyEffects(e.link.SendLine(time.Now(), []byte(line+e.lineTerminator())))
}

func (e *Engine) dispatchCommand(cmd Command) {
	switch cmd.Kind {
	case CmdConnect:
		e.doConnect(cmd.TargetCall, cmd.Digis)
	case CmdDisconnect:
		e.applyEffects(e.link.Disconnect(time.Now()))
	case CmdUnproto:
		e.enterOrSendUnproto(cmd)
	case CmdUnprotoExit:
		e.unprotoMode = false
		e.term.OnStatus(StatusUnprotoExited, "")
	case CmdRetries:
		e.link.SetN2(cmd.N)
		e.term.OnStatus(StatusInfo, fmt.Sprintf("retries set to %d", e.link.N2()))
	case CmdEcho:
		e.echo = cmd.On
	case CmdCRLF:
		e.crlf = cmd.On
	case CmdDebug:
		e.debug = !e.debug
	case CmdStatus:
		e.term.OnStatus(StatusInfo, e.statusLine())
	case CmdClear:
		e.term.OnStatus(StatusClear, "")
	case CmdHelp:
		e.term.OnStatus(StatusHelp, helpText(cmd.Verbose))
	case CmdQuit:
		// Handled by the caller loop via Run's input-channel-closed path
		// in normal operation; a typed /quit requests the same shutdown.
		e.requestQuit = true
	case CmdUnknown:
		e.handleUnknownCommand(cmd)
	}
}

func (e *Engine) handleUnknownCommand(cmd Command) {
	if e.link.State() == link.StateConnected && !e.unprotoMode {
		e.applyEffects(e.link.SendLine(time.Now(), []byte("/"+cmd.Raw+e.lineTerminator())))
		return
	}
	e.term.OnStatus(StatusNoCommand, "no ***")
}

// doConnect resolves call through the alias book (if configured) before
// falling back to treating it as a literal callsign.
func (e *Engine) doConnect(call string, digiNames []string) {
	if e.aliases != nil {
		if resolved, ok := e.aliases.Resolve(call); ok {
			call = resolved
		}
	}

	peer, err := ax25.ParseCallsign(call)
	if err != nil {
		e.term.OnStatus(StatusProtocolError, err.Error())
		return
	}

	digis, err := parseDigipeaters(digiNames)
	if err != nil {
		e.term.OnStatus(StatusProtocolError, err.Error())
		return
	}

	e.applyEffects(e.link.Connect(time.Now(), peer, digis))
}

func (e *Engine) enterOrSendUnproto(cmd Command) {
	dest, err := ax25.ParseCallsign(cmd.TargetCall)
	if err != nil {
		e.term.OnStatus(StatusProtocolError, err.Error())
		return
	}
	digis, err := parseDigipeaters(cmd.Digis)
	if err != nil {
		e.term.OnStatus(StatusProtocolError, err.Error())
		return
	}

	if cmd.Message == "" {
		e.unprotoMode = true
		e.unprotoDest = dest
		e.unprotoDigis = digis
		e.term.OnStatus(StatusUnprotoEntered, dest.String())
		return
	}

	e.sendUnproto(dest, digis, cmd.Message)
}

// sendUnproto transmits one UI frame; UNPROTO never touches link state.
func (e *Engine) sendUnproto(dest ax25.Callsign, digis []ax25.Digipeater, message string) {
	chain := ax25.AddressChain{Dest: dest, Src: e.mycall, Digis: digis}
	raw, err := ax25.EncodeUFrame(chain, true, ax25.CtrlUI, false, []byte(message))
	if err != nil {
		e.term.OnStatus(StatusProtocolError, err.Error())
		return
	}
	e.sendRaw(raw)
	e.term.OnStatus(StatusUnprotoSent, message)
}

func parseDigipeaters(names []string) ([]ax25.Digipeater, error) {
	if len(names) == 0 {
		return nil, nil
	}
	digis := make([]ax25.Digipeater, 0, len(names))
	for _, n := range names {
		call, err := ax25.ParseCallsign(n)
		if err != nil {
			return nil, fmt.Errorf("session: invalid digipeater %q: %w", n, err)
		}
		digis = append(digis, ax25.Digipeater{Call: call})
	}
	return digis, nil
}

func (e *Engine) statusLine() string {
	return fmt.Sprintf("state=%s peer=%s retries=%d sent=%s recv=%s",
		e.link.State(), e.link.Peer(), e.link.N2(),
		humanize.Bytes(e.bytesSent), humanize.Bytes(e.bytesRecv))
}

func helpText(verbose bool) string {
	if !verbose {
		return "/connect /disconnect /unproto /upexit /retries /echo /crlf /debug /status /clear /help /quit"
	}
	return "/connect CALL [via D1,D2,...]  /disconnect  " +
		"/unproto DEST [via D1,D2,...] [message]  /upexit (/ex)  " +
		"/retries N  /echo on|off  /crlf on|off  /debug  /status  /clear (/cls)  " +
		"/help [-v]  /quit (/q, /exit)"
}

// Quit performs a disconnect, waiting up to one T1 interval for the
// peer's UA/DM before returning regardless of outcome.
func (e *Engine) Quit(ctx context.Context) error {
	e.applyEffects(e.link.Disconnect(time.Now()))

	if e.link.State() == link.StateDisconnected {
		return nil
	}

	deadline := time.NewTimer(e.waitT1())
	defer deadline.Stop()
	inbound := e.transport.Inbound()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case chunk, ok := <-inbound:
			if !ok {
				return nil
			}
			e.handleInboundBytes(chunk)
			if e.link.State() == link.StateDisconnected {
				return nil
			}
		}
	}
}

func (e *Engine) waitT1() time.Duration {
	if d := e.link.NextDeadline(); !d.IsZero() {
		if remaining := time.Until(d); remaining > 0 {
			return remaining
		}
	}
	return 4 * time.Second
}

// RequestedQuit reports whether the user typed /quit (or an abbreviation),
// which Run treats the same as the input channel closing.
func (e *Engine) RequestedQuit() bool { return e.requestQuit }
