package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	systemd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/johnw42/remapd/pkg/daemon"
	"github.com/johnw42/remapd/pkg/journal"
	"github.com/johnw42/remapd/pkg/journal/memory"
	"github.com/johnw42/remapd/pkg/journal/sqlite"
	"github.com/johnw42/remapd/pkg/remap"
	"github.com/johnw42/remapd/pkg/rules"
	"github.com/johnw42/remapd/pkg/x11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	err := run()
	if err != nil {
		log.Fatalf("error: %+v", err)
	}
}

func run() error {
	rulesPath := flag.String("rules", filepath.Join(xdg.ConfigHome, "remapd", "rules.yaml"), "path to the rules file")
	journalPath := flag.String("journal", filepath.Join(xdg.DataHome, "remapd", "journal.db"), "path to the activity journal, empty to keep it in memory")
	displayName := flag.String("display", "", "X display to connect to, default from $DISPLAY")
	daemonize := flag.Bool("daemon", false, "run under a supervisor that restarts the engine on crashes")
	grabTree := flag.Bool("grab-tree", false, "grab triggers on every window in the tree instead of the root only")
	history := flag.Int("history", 0, "print the n most recent journal entries and exit")
	debugLog := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log, err := newLogger(*debugLog)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if *history > 0 {
		return printHistory(*journalPath, *history, log)
	}

	rec, err := openJournal(*journalPath, log)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer rec.Close()

	if *daemonize && !daemon.InWorker() {
		log.Info("started remapd supervisor")
		return daemon.NewSupervisor(*rulesPath, rec, log).Run()
	}

	return runWorker(*rulesPath, *displayName, *grabTree, rec, log)
}

// runWorker runs the whole interception pipeline. Panics are logged
// here so the supervisor sees the cause without any channel back to it.
func runWorker(rulesPath, displayName string, grabTree bool, rec journal.Recorder, log *zap.SugaredLogger) error {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic: %v\n%s", r, debug.Stack())
			os.Exit(2)
		}
	}()

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	display, err := x11.Open(displayName, log)
	if err != nil {
		return fmt.Errorf("open display: %w", err)
	}
	defer display.Close()

	layout, err := display.Layout()
	if err != nil {
		return fmt.Errorf("query layout: %w", err)
	}

	items, err := rules.Load(rulesPath)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	mappings, err := rules.Compile(items, layout)
	if err != nil {
		return fmt.Errorf("compile rules: %w", err)
	}
	if len(mappings) == 0 {
		log.Warnw("no enabled rules", "path", rulesPath)
	}

	recorder, err := x11.OpenRecorder(displayName, log)
	if err != nil {
		return fmt.Errorf("open capture connection: %w", err)
	}
	defer recorder.Close()

	grabber := remap.NewGrabber(display, log)
	engine := remap.NewEngine(display, grabber, layout, mappings, rec, log)

	root := display.RootWindow()
	if grabTree {
		if err := display.SelectCreateNotify(root); err != nil {
			log.Warnw("new windows will not be grabbed", "error", err)
		}
		var wins []x11.Window
		if err := display.WalkTree(root, func(w x11.Window) { wins = append(wins, w) }); err != nil {
			return fmt.Errorf("walk window tree: %w", err)
		}
		engine.InstallGrabs(wins...)
	} else {
		engine.InstallGrabs(root)
	}
	display.Sync()

	log.Infow("started remapd", "rules", len(mappings))

	errChan := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		err := eventLoop(ctx, engine, recorder, display, grabTree)
		if err != nil {
			errChan <- fmt.Errorf("event loop: %w", err)
		}
	}()

	go func() {
		defer wg.Done()
		err := systemdNotifyLoop(ctx)
		if err != nil {
			errChan <- fmt.Errorf("systemd notify: %w", err)
		}
	}()

	err = <-errChan
	switch {
	case errors.Is(err, context.Canceled):
		log.Info("shutting down")
		wg.Wait()
		return nil
	case err != nil:
		return err
	}

	return nil
}

// eventLoop is the single goroutine that touches the engine. Each
// captured record is handled to completion before the next is read.
func eventLoop(ctx context.Context, engine *remap.Engine, recorder *x11.Recorder, display *x11.Display, grabTree bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-recorder.Events():
			if !ok {
				return errors.New("capture stream closed")
			}
			engine.HandleEvent(ev)

		case win, ok := <-display.Created():
			if !ok {
				return errors.New("display connection closed")
			}
			if grabTree {
				engine.InstallGrabs(win)
			}
		}
	}
}

func systemdNotifyLoop(ctx context.Context) error {
	// tell systemd that we're ready
	supported, err := systemd.SdNotify(false, systemd.SdNotifyReady)
	if err != nil {
		return fmt.Errorf("notify systemd: %w", err)
	}
	if !supported {
		return nil
	}

	_, _ = systemd.SdNotify(false, "STATUS=Remapping keys")

	// notify watchdog
	t, err := systemd.SdWatchdogEnabled(false)
	if err != nil {
		return fmt.Errorf("check watchdog: %w", err)
	}
	// if watchdog is not enabled, we don't need to notify it
	if t == 0 {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-time.After(t / 2):
			_, err := systemd.SdNotify(false, systemd.SdNotifyWatchdog)
			if err != nil {
				return fmt.Errorf("notify watchdog: %w", err)
			}
		}
	}
}

func openJournal(path string, log *zap.SugaredLogger) (journal.Recorder, error) {
	if path == "" {
		return memory.NewJournal(1000), nil
	}
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return sqlite.NewJournal(path, log)
}

func printHistory(path string, n int, log *zap.SugaredLogger) error {
	if path == "" {
		return errors.New("-history needs a journal file, not the in-memory journal")
	}
	j, err := sqlite.NewJournal(path, log)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	entries, err := j.Recent(n)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-13s", e.Time.Format(time.RFC3339), e.Kind)
		if e.Rule != "" {
			line += "  " + e.Rule
		}
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		fmt.Println(line)
	}
	return nil
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	loggerConfig := zap.NewDevelopmentConfig()

	loggerConfig.OutputPaths = []string{"stdout"}
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if !debug {
		loggerConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger.Sugar(), nil
}
