// Package view decides what happens when the user enters a view.
//
// Views share no in-process state: each one re-derives the session flags on
// entry from the backend (is anyone logged in, which location does the session
// hold) and from local storage (has the user shared their location). [Policy]
// does that derivation and maps it to a [Decision]. It never mutates anything.
package view

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/phantomlink/pkg/ghostapi"
)

// Kind identifies a view.
type Kind int

const (
	// Home offers mode selection and location sharing.
	Home Kind = iota

	// Ghosts lists ghosts near the user's location.
	Ghosts

	// Loading is the simulated ghost search.
	Loading

	// Conversation is the live chat, typed or spoken.
	Conversation

	// History lists saved conversations.
	History
)

// String returns the view name.
func (k Kind) String() string {
	switch k {
	case Home:
		return "home"
	case Ghosts:
		return "ghosts"
	case Loading:
		return "loading"
	case Conversation:
		return "conversation"
	case History:
		return "history"
	default:
		return "unknown"
	}
}

// requirement describes what a view needs before it can be shown.
type requirement struct {
	// localLocation gates on the local locationShared flag.
	localLocation bool

	// serverLocation needs the session to hold a resolved location.
	serverLocation bool
}

var requirements = map[Kind]requirement{
	Home:         {localLocation: true},
	Ghosts:       {serverLocation: true},
	Loading:      {localLocation: true},
	Conversation: {},
	History:      {},
}

// Outcome is the routing result of entering a view.
type Outcome int

const (
	// Proceed shows the view.
	Proceed Outcome = iota

	// RedirectLogin sends the user to log in.
	RedirectLogin

	// PromptLocation asks the user to share their location first.
	PromptLocation
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Proceed:
		return "proceed"
	case RedirectLogin:
		return "redirect-login"
	case PromptLocation:
		return "prompt-location"
	default:
		return "unknown"
	}
}

// SessionFlags is what a view knows about the session at entry.
type SessionFlags struct {
	Authenticated  bool
	Username       string
	LocationShared bool
}

// Decision is the full result of [Policy.Resolve].
type Decision struct {
	Outcome Outcome
	Flags   SessionFlags

	// Location is set for views that query the session location.
	Location ghostapi.Location
}

// FlagReader reads the local location-shared flag.
type FlagReader interface {
	LocationShared(ctx context.Context) (bool, error)
}

// Policy resolves view entry decisions.
type Policy struct {
	api   ghostapi.API
	flags FlagReader
}

// NewPolicy returns a policy that queries api and reads local flags from flags.
func NewPolicy(api ghostapi.API, flags FlagReader) *Policy {
	return &Policy{api: api, flags: flags}
}

// Resolve decides whether kind may be shown. An anonymous session always
// redirects to login without any further queries. A transport failure on the
// session check is returned as an error with no redirect; callers treat it as
// a failed background check.
func (p *Policy) Resolve(ctx context.Context, kind Kind) (Decision, error) {
	req, ok := requirements[kind]
	if !ok {
		return Decision{}, fmt.Errorf("view: unknown view %d", int(kind))
	}

	username, err := p.api.Me(ctx)
	if errors.Is(err, ghostapi.ErrUnauthenticated) {
		return Decision{Outcome: RedirectLogin}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("view: %s: session check: %w", kind, err)
	}
	if username == "" {
		return Decision{Outcome: RedirectLogin}, nil
	}

	d := Decision{Outcome: Proceed, Flags: SessionFlags{Authenticated: true, Username: username}}

	shared, err := p.flags.LocationShared(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("view: %s: %w", kind, err)
	}
	d.Flags.LocationShared = shared
	if req.localLocation && !shared {
		d.Outcome = PromptLocation
		return d, nil
	}

	if req.serverLocation {
		loc, err := p.api.Location(ctx)
		if errors.Is(err, ghostapi.ErrLocationNotShared) {
			d.Outcome = PromptLocation
			return d, nil
		}
		if err != nil {
			return Decision{}, fmt.Errorf("view: %s: location: %w", kind, err)
		}
		d.Location = loc
	}
	return d, nil
}
