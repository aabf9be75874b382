// Command ax25term is an interactive AX.25 packet radio terminal: it
// speaks KISS to a TNC (over TCP or a serial port) and drives the LAPB
// connected-mode state machine in internal/link on top of it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kc3smw/ax25term/internal/ax25"
	"github.com/kc3smw/ax25term/internal/config"
	"github.com/kc3smw/ax25term/internal/directory"
	"github.com/kc3smw/ax25term/internal/kiss"
	"github.com/kc3smw/ax25term/internal/link"
	"github.com/kc3smw/ax25term/internal/session"
)

const defaultConfigFile = "ax25term.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	var configFile string
	flag.StringVar(&configFile, "config", defaultConfigFile, "configuration file path")
	var serialDevice string
	flag.StringVar(&serialDevice, "serial", "", "use a serial KISS TNC at this device path instead of TCP")
	var baud int
	flag.IntVar(&baud, "baud", 9600, "serial baud rate, only with -serial")
	flag.Parse()

	cfg := config.NewConfig(configFile)
	if _, err := os.Stat(configFile); err == nil {
		if err := cfg.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "ax25term: %v\n", err)
			return 2
		}
	}

	inv, err := parseArgs(flag.Args(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ax25term: %v\n", err)
		fmt.Fprintln(os.Stderr, "usage: ax25term [-config FILE] [-serial DEV] MYCALL [TARGET] [HOST] [PORT]")
		fmt.Fprintln(os.Stderr, "   or: ax25term [-config FILE] [-serial DEV] MYCALL [TARGET] HOST:PORT")
		return 2
	}

	mycall, err := ax25.ParseCallsign(cfg.GetMyCall())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ax25term: %v\n", err)
		return 2
	}

	logger := log.New(os.Stderr, "[ax25term] ", log.LstdFlags)

	var transport kiss.Transport
	if serialDevice != "" {
		transport, err = kiss.DialSerial(kiss.SerialConfig{Device: serialDevice, BaudRate: baud})
	} else {
		ctx, cancelDial := context.WithTimeout(context.Background(), 10*time.Second)
		transport, err = kiss.Dial(ctx, fmt.Sprintf("%s:%d", cfg.GetHost(), cfg.GetPort()))
		cancelDial()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ax25term: failed to open TNC transport: %v\n", err)
		return 1
	}
	defer transport.Close()

	term, err := newConsoleTerminal()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ax25term: %v\n", err)
		return 1
	}
	defer term.Close()

	linkCfg := link.Config{
		N2:          int(cfg.GetN2()),
		T1:          cfg.GetT1(),
		T3:          cfg.GetT3(),
		WindowK:     cfg.GetWindowK(),
		AckCoalesce: cfg.GetAckCoalesce(),
		FrmrFatal:   cfg.GetFrmrFatal(),
	}.Clamped()

	engine := session.NewEngine(mycall, transport, linkCfg, term, logger)
	engine.SetCRLF(cfg.GetCRLF())

	if cfg.GetDirectoryEnabled() {
		store, err := directory.NewStore(cfg.GetDirectoryDBPath(), logger)
		if err != nil {
			logger.Printf("directory disabled: %v", err)
		} else {
			defer store.Close()
			engine.SetDirectory(store)
		}
	}

	var book *directory.AliasBook
	if cfg.GetAliasFile() != "" {
		reload := time.Duration(cfg.GetSyncHours()) * time.Hour
		book = directory.NewAliasBook(cfg.GetAliasFile(), reload, logger)
		if err := book.Start(); err != nil {
			logger.Printf("alias book disabled: %v", err)
			book = nil
		} else {
			defer book.Stop()
			engine.SetAliasBook(book)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if book != nil && cfg.GetSyncURL() != "" {
		syncer := directory.NewSyncer(cfg.GetSyncURL(), cfg.GetAliasFile(), book,
			time.Duration(cfg.GetSyncHours())*time.Hour, logger)
		go syncer.Start(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	if inv.target != "" {
		term.seedInput("/connect " + inv.target)
	}

	if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Printf("engine stopped: %v", err)
		return 1
	}

	return 0
}
