package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/kc3smw/ax25term/internal/ax25"
	"github.com/kc3smw/ax25term/internal/session"
)

// consoleTerminal is the default Terminal: stdin read on its own
// goroutine, engine output written to stdout and mirrored to a
// timestamped session log, pager_pending decided by applying
// session.DefaultPagerPredicate to the last line received.
type consoleTerminal struct {
	out     *bufio.Writer
	logFile *os.File
	input   chan string

	pagerPending bool
}

func newConsoleTerminal() (*consoleTerminal, error) {
	name := fmt.Sprintf("session-%s.log", time.Now().Format("20060102-150405"))
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create session log %s: %w", name, err)
	}

	t := &consoleTerminal{
		out:     bufio.NewWriter(os.Stdout),
		logFile: f,
		input:   make(chan string, 32),
	}
	go t.readStdin()
	return t, nil
}

func (t *consoleTerminal) readStdin() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		t.input <- scanner.Text()
	}
	close(t.input)
}

func (t *consoleTerminal) OnRX(text []byte, source ax25.Callsign, pid byte) {
	line := fmt.Sprintf("%s: %s", source, string(text))
	t.writeLine(line)
	t.pagerPending = session.DefaultPagerPredicate(line)
}

func (t *consoleTerminal) OnStatus(kind session.StatusKind, detail string) {
	if kind == session.StatusClear {
		fmt.Fprint(t.out, "\033[2J\033[H")
		t.out.Flush()
		return
	}
	if detail == "" {
		t.writeLine(fmt.Sprintf("[%s]", kind))
		return
	}
	t.writeLine(fmt.Sprintf("[%s] %s", kind, detail))
}

func (t *consoleTerminal) Input() <-chan string { return t.input }

func (t *consoleTerminal) PagerPending() bool { return t.pagerPending }

// seedInput injects one line ahead of anything typed, used for the
// optional TARGET positional argument's auto-connect.
func (t *consoleTerminal) seedInput(line string) {
	t.input <- line
}

func (t *consoleTerminal) Close() error {
	t.out.Flush()
	return t.logFile.Close()
}

func (t *consoleTerminal) writeLine(line string) {
	fmt.Fprintln(t.out, line)
	t.out.Flush()
	fmt.Fprintf(t.logFile, "%s %s\n", time.Now().Format(time.RFC3339), line)
}
