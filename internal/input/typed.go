package input

import (
	"context"
	"strings"
)

// Typed is the text input channel.
type Typed struct {
	sub Submitter
}

var _ Channel = (*Typed)(nil)

// NewTyped returns a typed channel submitting to sub.
func NewTyped(sub Submitter) *Typed {
	return &Typed{sub: sub}
}

// Mode implements [Channel].
func (*Typed) Mode() Mode { return Text }

// Send submits raw. Blank input and input that arrives while the ghost is
// still answering are ignored and reported as not accepted.
func (t *Typed) Send(ctx context.Context, raw string) (accepted bool, err error) {
	text := strings.TrimSpace(raw)
	if text == "" || t.sub.Busy() {
		return false, nil
	}
	if _, err := t.sub.Submit(ctx, UserMessageSubmitted{Text: text, Mode: Text}); err != nil {
		return true, err
	}
	return true, nil
}
