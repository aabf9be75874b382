package ax25

import "fmt"

// Frame is a fully decoded (or to-be-encoded) AX.25 frame: address chain,
// control octet, optional PID, and optional info field.
type Frame struct {
	Chain   AddressChain
	Ctrl    Control
	HasPID  bool
	PID     byte
	Info    []byte
}

// EncodeIFrame builds a raw I-frame: the address chain, control octet, PID
// (always 0xF0, "no layer 3"), and info payload.
func EncodeIFrame(chain AddressChain, ns, nr uint8, poll bool, info []byte) ([]byte, error) {
	addr, err := EncodeChain(chain, true)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(addr)+2+len(info))
	out = append(out, addr...)
	out = append(out, EncodeI(ns, nr, poll))
	out = append(out, PIDNoLayer3)
	out = append(out, info...)
	return out, nil
}

// EncodeSFrame builds a raw S-frame (RR/RNR/REJ): no PID.
func EncodeSFrame(chain AddressChain, isCommand bool, code SCode, nr uint8, pf bool) ([]byte, error) {
	addr, err := EncodeChain(chain, isCommand)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(addr)+1)
	out = append(out, addr...)
	out = append(out, EncodeS(code, nr, pf))
	return out, nil
}

// EncodeUFrame builds a raw U-frame. SABM(E), DISC, and UA carry no PID;
// UI carries PID 0xF0 plus info; FRMR is never generated by this engine
// but decoding it is supported.
func EncodeUFrame(chain AddressChain, isCommand bool, ctype byte, pf bool, info []byte) ([]byte, error) {
	addr, err := EncodeChain(chain, isCommand)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(addr)+2+len(info))
	out = append(out, addr...)
	out = append(out, EncodeU(ctype, pf))
	if ctype == CtrlUI {
		out = append(out, PIDNoLayer3)
		out = append(out, info...)
	}
	return out, nil
}

// Decode parses a raw AX.25 frame (as delivered by the KISS transport) into
// its address chain, control octet, and payload. Frames shorter than 14
// octets plus the control octet are rejected with ErrMalformedFrame.
func Decode(raw []byte) (Frame, error) {
	if len(raw) < minFrameLen {
		return Frame{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedFrame, len(raw), minFrameLen)
	}

	chain, consumed, err := DecodeChain(raw)
	if err != nil {
		return Frame{}, err
	}
	if consumed >= len(raw) {
		return Frame{}, fmt.Errorf("%w: no control octet after address chain", ErrMalformedFrame)
	}

	ctrl, err := DecodeControl(raw[consumed])
	if err != nil {
		return Frame{}, err
	}

	f := Frame{Chain: chain, Ctrl: ctrl}

	rest := raw[consumed+1:]
	carriesPID := ctrl.Type == FrameI || (ctrl.Type == FrameU && ctrl.UType == CtrlUI)
	if carriesPID {
		if len(rest) == 0 {
			return Frame{}, fmt.Errorf("%w: missing PID", ErrMalformedFrame)
		}
		f.HasPID = true
		f.PID = rest[0]
		f.Info = rest[1:]
	} else if ctrl.Type == FrameU && ctrl.UType == CtrlFRMR {
		// FRMR carries a 3-octet info field signaling the rejected frame's
		// control/state; accepted as a protocol-error signal, never
		// generated by this engine.
		f.Info = rest
	}

	return f, nil
}
