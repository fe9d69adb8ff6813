package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/zalo/remoteplay/internal/decoder"
	"github.com/zalo/remoteplay/internal/event"
	"github.com/zalo/remoteplay/internal/session"
)

const (
	statsInterval    = 5 * time.Second
	snapshotInterval = time.Second
)

// errPINCancelled is returned when the PIN prompt is left empty
var errPINCancelled = errors.New("login PIN entry cancelled")

// frameSource is the display side of the decoder
type frameSource interface {
	PullFrame() *decoder.Frame
}

// controller is the part of the session the CLI drives
type controller interface {
	Stop() error
	RequestSleep() error
	SetLoginPIN(pin string) error
}

// app is the display host: it pulls frames, prompts for PINs and waits for
// the session to end.
type app struct {
	frames   frameSource
	snapshot string
	logger   *zap.Logger
	sess     controller

	available chan struct{}
	pins      chan bool
	quit      chan event.Quit
}

func newApp(frames frameSource, snapshot string, logger *zap.Logger) *app {
	return &app{
		frames:    frames,
		snapshot:  snapshot,
		logger:    logger.Named("display"),
		available: make(chan struct{}, 1),
		pins:      make(chan bool, 1),
		quit:      make(chan event.Quit, 1),
	}
}

func (a *app) handlers() session.Handlers {
	return session.Handlers{
		FramesAvailable: func() {
			select {
			case a.available <- struct{}{}:
			default:
			}
		},
		Quit: func(reason event.QuitReason, text string) {
			select {
			case a.quit <- event.Quit{Reason: reason, Text: text}:
			default:
			}
		},
		LoginPINRequested: func(incorrect bool) {
			select {
			case a.pins <- incorrect:
			default:
			}
		},
	}
}

// display pulls the latest frame whenever the decoder has output.
func (a *app) display(ctx context.Context) error {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	var (
		shown        int
		lastSnapshot time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			if shown > 0 {
				a.logger.Info("Display stats", zap.Float64("fps", float64(shown)/statsInterval.Seconds()))
			}
			shown = 0

		case <-a.available:
			f := a.frames.PullFrame()
			if f == nil {
				continue
			}
			shown++
			if a.snapshot != "" && time.Since(lastSnapshot) >= snapshotInterval {
				lastSnapshot = time.Now()
				if err := writeSnapshot(a.snapshot, f); err != nil {
					a.logger.Warn("Failed to write snapshot", zap.Error(err))
				}
			}
		}
	}
}

// writeSnapshot replaces path with a JPEG of f.
func writeSnapshot(path string, f *decoder.Frame) error {
	img, err := f.Image()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.jpg")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: 85}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// promptPINs answers login PIN requests from in. An empty answer stops the
// session.
func (a *app) promptPINs(ctx context.Context, in io.Reader) error {
	if !isTerminal(in) {
		in = bufio.NewReader(in)
	}

	for {
		var incorrect bool
		select {
		case <-ctx.Done():
			return nil
		case incorrect = <-a.pins:
		}

		type result struct {
			pin string
			err error
		}
		done := make(chan result, 1)
		go func() {
			pin, err := promptPIN(in, incorrect)
			done <- result{pin, err}
		}()

		var r result
		select {
		case <-ctx.Done():
			return nil
		case r = <-done:
		}

		if r.err != nil {
			a.logger.Info("Stopping session", zap.Error(r.err))
			a.sess.Stop()
			continue
		}
		if err := a.sess.SetLoginPIN(r.pin); err != nil {
			a.logger.Warn("Failed to send login PIN", zap.Error(err))
		}
	}
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// promptPIN reads one PIN, without echo when in is a terminal.
func promptPIN(in io.Reader, incorrect bool) (string, error) {
	if incorrect {
		fmt.Fprint(os.Stderr, "Incorrect PIN. ")
	}
	fmt.Fprint(os.Stderr, "Login PIN (empty to cancel): ")

	var line string
	if isTerminal(in) {
		fd := int(in.(*os.File).Fd())
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		line = string(b)
	} else {
		br, ok := in.(*bufio.Reader)
		if !ok {
			br = bufio.NewReader(in)
		}
		var err error
		line, err = br.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
	}

	pin := strings.TrimSpace(line)
	if pin == "" {
		return "", errPINCancelled
	}
	return pin, nil
}

// wait blocks until the session quits or ctx is cancelled. On cancel the
// session is stopped, or put to sleep when sleep is set.
func (a *app) wait(ctx context.Context, sleep bool) error {
	select {
	case q := <-a.quit:
		return quitError(q)

	case <-ctx.Done():
		if sleep {
			return a.sess.RequestSleep()
		}
		return a.sess.Stop()
	}
}

func quitError(q event.Quit) error {
	if !q.Reason.IsError() {
		return nil
	}
	if q.Text != "" {
		return fmt.Errorf("session ended: %s: %s", q.Reason, q.Text)
	}
	return fmt.Errorf("session ended: %s", q.Reason)
}
