// Package audio plays adhan recordings through an external player process.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// DefaultPlayer is used when AUDIO_PLAYER is unset.
const DefaultPlayer = "ffplay -nodisp -autoexit -loglevel quiet"

// ErrNoAudio is returned for an empty reference.
var ErrNoAudio = errors.New("no audio file")

// Sink plays a recording. Play returns once playback has started.
type Sink interface {
	Play(ctx context.Context, ref string) error
	Stop() error
}

// NullSink discards playback requests.
type NullSink struct{}

func (NullSink) Play(context.Context, string) error { return nil }
func (NullSink) Stop() error                        { return nil }

// CommandPlayer runs one player process at a time. Starting a new
// recording stops the one still playing.
type CommandPlayer struct {
	args   []string
	dir    string
	fs     afero.Fs
	logger zerolog.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
	// closed when cmd exits
	done chan struct{}
}

// NewCommandPlayer builds a player from a command line such as
// "mpv --no-video". The file path is appended as the last argument.
// Relative refs resolve against dir. A nil fs means the OS filesystem.
func NewCommandPlayer(args []string, dir string, fs afero.Fs) (*CommandPlayer, error) {
	if len(args) == 0 {
		return nil, errors.New("audio player command is empty")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &CommandPlayer{
		args:   args,
		dir:    dir,
		fs:     fs,
		logger: log.With().Str("component", "audio").Logger(),
	}, nil
}

// ParseCommand splits a player command line on whitespace, falling back to
// DefaultPlayer when it is blank.
func ParseCommand(s string) []string {
	if strings.TrimSpace(s) == "" {
		s = DefaultPlayer
	}
	return strings.Fields(s)
}

// Resolve maps ref to a file path.
func (p *CommandPlayer) Resolve(ref string) string {
	if filepath.IsAbs(ref) || p.dir == "" {
		return ref
	}
	return filepath.Join(p.dir, ref)
}

// Play stops any running recording and starts ref. ctx only bounds the
// start; playback continues after Play returns.
func (p *CommandPlayer) Play(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ErrNoAudio
	}
	path := p.Resolve(ref)
	if _, err := p.fs.Stat(path); err != nil {
		return fmt.Errorf("audio file %s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()

	args := append(append([]string{}, p.args[1:]...), path)
	cmd := exec.Command(p.args[0], args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.args[0], err)
	}

	done := make(chan struct{})
	p.cmd, p.done = cmd, done
	p.logger.Info().Str("file", path).Int("pid", cmd.Process.Pid).Msg("playing")

	go func() {
		err := cmd.Wait()
		close(done)
		if err != nil {
			p.logger.Debug().Err(err).Str("file", path).Msg("player exited")
		}
		p.mu.Lock()
		if p.cmd == cmd {
			p.cmd, p.done = nil, nil
		}
		p.mu.Unlock()
	}()
	return nil
}

// Stop kills the running player, if any, and waits for it to exit.
func (p *CommandPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

// Playing reports whether a player process is running.
func (p *CommandPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

func (p *CommandPlayer) stopLocked() {
	if p.cmd == nil {
		return
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn().Err(err).Msg("kill player")
	}
	<-p.done
	p.cmd, p.done = nil, nil
}
