package ax25

import "errors"

// ErrMalformedFrame is returned by Decode/DecodeChain when a frame is
// shorter than the minimum address-chain-plus-control length (14 address
// octets plus 1 control octet), or otherwise cannot be parsed.
var ErrMalformedFrame = errors.New("ax25: malformed frame")

// minFrameLen is the address chain (2 callsigns minimum) plus the control
// octet, the minimum below which a frame is rejected with ErrMalformedFrame.
const minFrameLen = 14 + 1
