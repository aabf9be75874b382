// Package directory is an optional, passive recorder that sits above the
// session engine: a reloadable alias book for /connect shortcuts, and a
// SQLite-backed log of heard stations and connection history. Nothing in
// it participates in the LAPB state machine or influences a protocol
// decision.
package directory

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// AliasBook maps short nicknames to full callsign-SSID strings for
// /connect (e.g. "bbs" -> "KC3SMW-7"), reloadable in the background from a
// text file of "name = CALL" lines.
type AliasBook struct {
	filename     string
	reloadPeriod time.Duration
	logger       *log.Logger

	mu     sync.RWMutex
	byName map[string]string

	stopChan chan struct{}
	running  bool
}

// NewAliasBook creates an AliasBook backed by filename. reloadPeriod of 0
// disables the background reload; Load (or Start) must still be called.
func NewAliasBook(filename string, reloadPeriod time.Duration, logger *log.Logger) *AliasBook {
	return &AliasBook{
		filename:     filename,
		reloadPeriod: reloadPeriod,
		logger:       logger,
		byName:       make(map[string]string),
		stopChan:     make(chan struct{}),
	}
}

// Load reads the alias file, replacing the in-memory table atomically.
// Lines are "name = CALL[-SSID]"; blank lines and lines starting with #
// are skipped.
func (a *AliasBook) Load() error {
	f, err := os.Open(a.filename)
	if err != nil {
		return fmt.Errorf("directory: failed to open alias file %s: %w", a.filename, err)
	}
	defer f.Close()

	next := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, call, ok := strings.Cut(line, "=")
		if !ok {
			a.logDebug("skipping malformed alias line %d: %s", lineNumber, line)
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		call = strings.ToUpper(strings.TrimSpace(call))
		if name == "" || call == "" {
			continue
		}
		next[name] = call
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("directory: error reading alias file %s: %w", a.filename, err)
	}

	a.mu.Lock()
	a.byName = next
	a.mu.Unlock()
	return nil
}

// Resolve looks up name (case-insensitive), returning the callsign it
// stands for.
func (a *AliasBook) Resolve(name string) (callsign string, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	callsign, ok = a.byName[strings.ToLower(name)]
	return
}

// Start loads the alias file and, if a reload period was configured,
// begins reloading it on that interval in the background.
func (a *AliasBook) Start() error {
	if err := a.Load(); err != nil {
		return err
	}
	if a.reloadPeriod > 0 {
		a.mu.Lock()
		a.running = true
		a.mu.Unlock()
		go a.reloadLoop()
	}
	return nil
}

func (a *AliasBook) reloadLoop() {
	ticker := time.NewTicker(a.reloadPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopChan:
			return
		case <-ticker.C:
			if err := a.Load(); err != nil {
				a.logDebug("alias reload failed: %v", err)
			}
		}
	}
}

// Stop ends the background reload, if one was started.
func (a *AliasBook) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		close(a.stopChan)
		a.running = false
	}
}

// Count reports the number of aliases currently loaded.
func (a *AliasBook) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.byName)
}

func (a *AliasBook) logDebug(format string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}
