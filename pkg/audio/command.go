package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// ErrNoCommand is returned when a device is configured without a program.
var ErrNoCommand = errors.New("audio: no command configured")

// Command is an external program invocation. Arguments may contain the
// placeholders {file}, {rate}, and {channels}, which are substituted when the
// program is started.
type Command struct {
	Path string
	Args []string
}

// ParseCommand splits a command line on whitespace. Quoting is not supported;
// wrap complex pipelines in a script.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrNoCommand
	}
	return Command{Path: fields[0], Args: fields[1:]}, nil
}

// IsZero reports whether c has no program.
func (c Command) IsZero() bool { return c.Path == "" }

func (c Command) expand(file string, f Format) []string {
	r := strings.NewReplacer(
		"{file}", file,
		"{rate}", strconv.Itoa(f.SampleRate),
		"{channels}", strconv.Itoa(f.Channels),
	)
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = r.Replace(a)
	}
	return args
}

// ── CommandClip ──────────────────────────────────────────────────────────────

// CommandClip plays a sound file through an external player.
type CommandClip struct {
	cmd  Command
	file string
	loop bool

	// op serialises Play and Stop; mu guards the fields below.
	op     sync.Mutex
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Clip = (*CommandClip)(nil)

// NewCommandClip returns a clip that plays file with cmd. When loop is true the
// player is restarted each time it exits until [CommandClip.Stop] is called.
func NewCommandClip(cmd Command, file string, loop bool) *CommandClip {
	return &CommandClip{cmd: cmd, file: file, loop: loop}
}

// Play implements [Clip]. It returns once the player process has been started.
func (c *CommandClip) Play() error {
	if c.cmd.IsZero() {
		return ErrNoCommand
	}
	c.op.Lock()
	defer c.op.Unlock()
	c.stop()

	ctx, cancel := context.WithCancel(context.Background())
	proc := exec.CommandContext(ctx, c.cmd.Path, c.cmd.expand(c.file, Format{})...)
	if err := proc.Start(); err != nil {
		cancel()
		return fmt.Errorf("audio: start %s: %w", c.cmd.Path, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		for {
			err := proc.Wait()
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				slog.Debug("audio: clip player exited", "file", c.file, "err", err)
			}
			if !c.loop {
				return
			}
			proc = exec.CommandContext(ctx, c.cmd.Path, c.cmd.expand(c.file, Format{})...)
			if err := proc.Start(); err != nil {
				slog.Warn("audio: restart looping clip", "file", c.file, "err", err)
				return
			}
		}
	}()
	return nil
}

// Stop implements [Clip]. It blocks until the player process has exited.
func (c *CommandClip) Stop() {
	c.op.Lock()
	defer c.op.Unlock()
	c.stop()
}

func (c *CommandClip) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// ── CommandSource ────────────────────────────────────────────────────────────

// CommandSource records an utterance by running a recorder program and reading
// raw PCM from its standard output, e.g.
// "arecord -q -d 8 -f S16_LE -r {rate} -c {channels} -t raw -".
type CommandSource struct {
	cmd    Command
	format Format
}

var _ Source = (*CommandSource)(nil)

// NewCommandSource returns a [Source] backed by cmd recording in format f.
func NewCommandSource(cmd Command, f Format) *CommandSource {
	return &CommandSource{cmd: cmd, format: f}
}

// Format implements [Source].
func (s *CommandSource) Format() Format { return s.format }

// Capture implements [Source].
func (s *CommandSource) Capture(ctx context.Context) (io.ReadCloser, error) {
	if s.cmd.IsZero() {
		return nil, ErrNoCommand
	}
	proc := exec.CommandContext(ctx, s.cmd.Path, s.cmd.expand("", s.format)...)
	out, err := proc.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: recorder pipe: %w", err)
	}
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("audio: start recorder %s: %w", s.cmd.Path, err)
	}
	return &procReader{ReadCloser: out, proc: proc}, nil
}

type procReader struct {
	io.ReadCloser
	proc *exec.Cmd
}

func (r *procReader) Close() error {
	err := r.ReadCloser.Close()
	if werr := r.proc.Wait(); werr != nil && err == nil {
		err = werr
	}
	return err
}

// ── CommandSink ──────────────────────────────────────────────────────────────

// CommandSink plays raw PCM by piping it into a player's standard input, e.g.
// "aplay -q -f S16_LE -r {rate} -c {channels}". The placeholders are filled
// from the first frame received.
type CommandSink struct {
	cmd Command
}

var _ Sink = (*CommandSink)(nil)

// NewCommandSink returns a [Sink] backed by cmd.
func NewCommandSink(cmd Command) *CommandSink {
	return &CommandSink{cmd: cmd}
}

// Play implements [Sink].
func (s *CommandSink) Play(ctx context.Context, frames <-chan AudioFrame) error {
	defer Drain(frames)
	if s.cmd.IsZero() {
		return ErrNoCommand
	}

	var first AudioFrame
	select {
	case <-ctx.Done():
		return ctx.Err()
	case f, ok := <-frames:
		if !ok {
			return nil
		}
		first = f
	}

	proc := exec.CommandContext(ctx, s.cmd.Path, s.cmd.expand("", Format{SampleRate: first.SampleRate, Channels: first.Channels})...)
	in, err := proc.StdinPipe()
	if err != nil {
		return fmt.Errorf("audio: player pipe: %w", err)
	}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("audio: start player %s: %w", s.cmd.Path, err)
	}

	writeErr := writeFrames(ctx, in, first, frames)
	in.Close()
	waitErr := proc.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if writeErr != nil {
		return fmt.Errorf("audio: write to player: %w", writeErr)
	}
	if waitErr != nil {
		return fmt.Errorf("audio: player: %w", waitErr)
	}
	return nil
}

func writeFrames(ctx context.Context, w io.Writer, first AudioFrame, frames <-chan AudioFrame) error {
	if _, err := w.Write(first.Data); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if _, err := w.Write(f.Data); err != nil {
				return err
			}
		}
	}
}
