package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/phantomlink/internal/input"
	"github.com/MrWong99/phantomlink/internal/observe"
	"github.com/MrWong99/phantomlink/internal/reveal"
	"github.com/MrWong99/phantomlink/internal/transcript"
	"github.com/MrWong99/phantomlink/pkg/ghostapi"
)

var _ input.Submitter = (*Controller)(nil)

// StartConversation opens a new conversation in mode, skipping or ending the
// search phase. The transcript starts empty.
func (c *Controller) StartConversation(ctx context.Context, mode input.Mode) error {
	ghost, hasGhost, err := c.store.SelectedGhost(ctx)
	if err != nil {
		observe.Logger(ctx).Warn("lifecycle: read selected ghost", "err", err)
	}

	c.mu.Lock()
	mc := c.cfg.forMode(mode)
	c.mu.Unlock()

	anim := reveal.New(c.group, c.transcript,
		reveal.WithInterval(mc.RevealInterval),
		reveal.WithChunk(mc.RevealChunk),
		reveal.WithListener(func(reveal.State) { c.emit() }),
		reveal.WithOnComplete(func(string) {
			if c.metrics != nil {
				c.metrics.RecordReveal(context.Background(), mode.String())
			}
		}),
	)

	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return err
	}
	switch c.state {
	case ModeSelection, Searching, Ended:
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: start conversation in %s", ErrWrongState, state)
	}
	searching := c.stopSearchLocked()
	prev := c.animator
	c.animator = anim
	c.mode = mode
	c.convID = c.newID()
	c.inflight = false
	c.clearEchoLocked()
	if hasGhost {
		c.ghost = ghost
	}
	convID := c.convID
	c.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	if searching && c.sounds.Loading != nil {
		c.sounds.Loading.Stop()
	}
	c.transcript.Clear()
	c.feedback.SetThresholds(mc.Thresholds)

	if c.metrics != nil {
		c.metrics.RecordConversationStarted(ctx, mode.String())
	}
	observe.Logger(ctx).Info("lifecycle: conversation started",
		"conversation_id", convID, "mode", mode.String(), "ghost", ghost.Name)
	c.setState(InConversation)
	return nil
}

// Submit implements [input.Submitter]. It sends msg to the ghost and, on a
// valid reply, appends the user turn, starts revealing the reply and evaluates
// the sentiment. Typed messages are echoed as soon as they are sent. Any
// failure leaves the transcript unchanged; a malformed reply is only logged.
func (c *Controller) Submit(ctx context.Context, msg input.UserMessageSubmitted) (input.Reply, error) {
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return input.Reply{}, err
	}
	if c.state != InConversation {
		state := c.state
		c.mu.Unlock()
		return input.Reply{}, fmt.Errorf("%w: submit in %s", ErrWrongState, state)
	}
	if c.inflight || (c.animator != nil && c.animator.Busy()) {
		c.mu.Unlock()
		return input.Reply{}, ErrBusy
	}
	c.inflight = true
	anim, convID := c.animator, c.convID
	c.mu.Unlock()
	c.emit()
	if msg.Mode == input.Text {
		c.showEcho(msg.Text)
	}

	log := observe.Logger(ctx).With("conversation_id", convID, "mode", msg.Mode.String())

	spanCtx, span := observe.StartConversationSpan(ctx, "send", convID, msg.Mode.String())
	reply, err := c.api.Chat(spanCtx, msg.Text)
	if err == nil && strings.TrimSpace(reply.Reply) == "" {
		err = fmt.Errorf("%w: empty reply", ghostapi.ErrMalformedResponse)
	}
	observe.Finish(span, err)

	c.mu.Lock()
	c.inflight = false
	stale := c.closed || c.animator != anim || c.state != InConversation
	c.mu.Unlock()

	if err != nil {
		c.emit()
		if errors.Is(err, ghostapi.ErrMalformedResponse) {
			log.Warn("lifecycle: ignoring malformed reply", "err", err)
			return input.Reply{}, err
		}
		c.fail(ctx, "send message", err)
		return input.Reply{}, err
	}
	if stale {
		log.Debug("lifecycle: dropping reply for a conversation that is gone")
		return input.Reply{}, ErrWrongState
	}

	c.transcript.Append(transcript.Turn{Role: transcript.RoleUser, Content: msg.Text})
	revealed := anim.BeginReveal(reply.Reply)
	effect := c.feedback.Evaluate(reply.Sentiment)
	log.Debug("lifecycle: reply received", "sentiment", reply.Sentiment, "effect", effect.String())

	return input.Reply{Text: reply.Reply, Revealed: revealed}, nil
}

// End asks the backend to save the conversation. Only the exact saved
// confirmation ends it: the reveal is cancelled, the transcript cleared, and
// the server session reset. Any other answer returns [ErrNotSaved] and leaves
// everything as it was so the user can retry.
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state != InConversation {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: end in %s", ErrWrongState, state)
	}
	convID := c.convID
	c.mu.Unlock()

	log := observe.Logger(ctx).With("conversation_id", convID)

	spanCtx, span := observe.StartConversationSpan(ctx, "end", convID, "")
	res, err := c.api.EndConversation(spanCtx)
	if err == nil && !res.Saved() {
		err = fmt.Errorf("%w: %q", ErrNotSaved, res.Message)
	}
	observe.Finish(span, err)
	if err != nil {
		c.fail(ctx, "end conversation", err)
		return err
	}

	c.mu.Lock()
	anim := c.animator
	c.clearEchoLocked()
	c.mu.Unlock()

	if anim != nil {
		anim.Cancel()
		anim.Reset()
	}
	c.transcript.Clear()
	c.feedback.Stop()
	if c.metrics != nil {
		c.metrics.RecordConversationEnded(ctx, true)
	}
	log.Info("lifecycle: conversation saved")
	c.setState(Ended)

	if err := c.api.ResetSession(ctx); err != nil {
		log.Warn("lifecycle: reset session after end", "err", err)
	}
	return nil
}

// ── echo ─────────────────────────────────────────────────────────────────────

func (c *Controller) showEcho(text string) {
	c.mu.Lock()
	if c.echoTimer != nil {
		c.echoTimer.Stop()
	}
	c.echo = text
	c.echoTimer = c.group.AfterFunc(c.cfg.EchoDuration, func() {
		c.mu.Lock()
		if c.echo != text {
			c.mu.Unlock()
			return
		}
		c.echo = ""
		c.echoTimer = nil
		c.mu.Unlock()
		c.emit()
	})
	c.mu.Unlock()
	c.emit()
}

func (c *Controller) clearEchoLocked() {
	if c.echoTimer != nil {
		c.echoTimer.Stop()
		c.echoTimer = nil
	}
	c.echo = ""
}
