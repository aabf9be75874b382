package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kc3smw/ax25term/internal/config"
)

// invocation is the parsed positional command line: MYCALL [TARGET]
// [HOST] [PORT] | MYCALL [TARGET] HOST:PORT | MYCALL [TARGET] 0 HOST PORT
// (a legacy RF-port token, accepted and ignored).
type invocation struct {
	myCall string
	target string
}

// looksLikeHost reports whether s is shaped like a hostname rather than a
// callsign: "localhost", or anything containing a dot or colon.
func looksLikeHost(s string) bool {
	return s == "localhost" || strings.ContainsAny(s, ".:")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseArgs applies positional arguments to cfg the way the original
// terminal did: MYCALL is required; everything after it is optional and
// resolved by shape, not position, since TARGET, an ignored legacy RF
// port digit, HOST, and PORT can appear in several combinations.
func parseArgs(args []string, cfg *config.Config) (inv invocation, err error) {
	if len(args) < 1 {
		return invocation{}, fmt.Errorf("MYCALL is required")
	}

	inv.myCall = args[0]
	cfg.SetMyCall(inv.myCall)
	i := 1

	if i < len(args) && !looksLikeHost(args[i]) && !isDigits(args[i]) {
		inv.target = args[i]
		i++
	}
	if i < len(args) && isDigits(args[i]) {
		i++ // legacy RF port, ignored
	}
	if i < len(args) {
		hp := args[i]
		i++
		if host, portStr, ok := strings.Cut(hp, ":"); ok {
			if host != "" {
				cfg.SetHost(host)
			}
			if port, err := strconv.ParseUint(portStr, 10, 32); err == nil {
				cfg.SetPort(uint32(port))
			}
		} else if looksLikeHost(hp) {
			cfg.SetHost(hp)
		}
	}
	if i < len(args) {
		if port, err := strconv.ParseUint(args[i], 10, 32); err == nil {
			cfg.SetPort(uint32(port))
		}
	}

	return inv, nil
}
