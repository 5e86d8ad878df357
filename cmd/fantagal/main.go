package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"golang.org/x/sync/errgroup"

	"github.com/tonetxo/fantagal-go"
	"github.com/tonetxo/fantagal-go/internal/midictl"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		backend    = flag.String("backend", "", "audio backend: oto|ebiten|beep|headless")
		enable     = flag.String("enable", "", "comma-separated engines to enable at startup")
		midiPort   = flag.String("midi", "", "MIDI input port to listen on")
		listMIDI   = flag.Bool("list-midi", false, "print MIDI input ports and exit")
		logLevel   = flag.String("log-level", "", "log level: debug|info|warn|error")
		logFile    = flag.String("log-file", "", "write logs to this file (the console discards them otherwise)")
		noUI       = flag.Bool("no-ui", false, "run without the console until interrupted")
	)
	flag.Parse()

	if *listMIDI {
		for _, name := range midictl.InPorts() {
			fmt.Println(name)
		}
		return
	}

	cfg := fantagal.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = fantagal.LoadConfig(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	if *backend != "" {
		cfg.Backend = *backend
	}
	if *enable != "" {
		cfg.Enabled = strings.Split(*enable, ",")
	}
	if *midiPort != "" {
		cfg.MIDIPort = *midiPort
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	if err := run(cfg, *logFile, *noUI); err != nil {
		log.Fatal(err)
	}
}

func run(cfg fantagal.Config, logFile string, noUI bool) error {
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	var logOut io.Writer = os.Stderr
	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	case !noUI:
		logOut = io.Discard
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	an := newAnalyzer(cfg.SampleRate)
	p, err := fantagal.New(
		fantagal.WithConfig(cfg),
		fantagal.WithLogger(logger),
		fantagal.WithSampleTap(an.Tap),
	)
	if err != nil {
		return err
	}
	if err := p.Start(); err != nil {
		return err
	}
	defer p.Stop()
	an.sampleRate = p.SampleRate()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.RunGears(ctx) })

	if cfg.MIDIPort != "" {
		router := midictl.NewRouter(p,
			midictl.WithLogger(logger),
			midictl.WithControlChange(func(_, controller uint8, value float32) {
				i, ok := ccParam(controller)
				if !ok {
					return
				}
				s := p.SelectedEngine()
				p.UpdateEngineParameters(s, withParam(p.EngineParameters(s), i, value))
			}))
		stopMIDI, err := midictl.Listen(cfg.MIDIPort, router)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			stopMIDI()
			return nil
		})
	}

	if noUI {
		logger.Info("running headless console; interrupt to quit")
	} else {
		g.Go(func() error {
			defer stop()
			prog := tea.NewProgram(newConsole(p, an), tea.WithContext(ctx), tea.WithAltScreen())
			_, err := prog.Run()
			if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}
