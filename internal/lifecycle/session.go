package lifecycle

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/MrWong99/phantomlink/internal/observe"
	"github.com/MrWong99/phantomlink/internal/view"
	"github.com/MrWong99/phantomlink/pkg/ghostapi"
)

// ── session gate ─────────────────────────────────────────────────────────────

// Enter runs the entry check for the home view. See [Controller.EnterView].
func (c *Controller) Enter(ctx context.Context) (view.Decision, error) {
	return c.EnterView(ctx, view.Home)
}

// EnterView resolves the entry policy for kind and moves to the matching state:
// Unauthenticated when there is no session, AwaitingLocation when the view
// needs a location that was never shared, ModeSelection otherwise.
//
// A failed session check leaves the state unchanged and returns the error.
func (c *Controller) EnterView(ctx context.Context, kind view.Kind) (view.Decision, error) {
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return view.Decision{}, err
	}
	c.mu.Unlock()

	d, err := view.NewPolicy(c.api, c.store).Resolve(ctx, kind)
	if err != nil {
		observe.Logger(ctx).Warn("lifecycle: session check failed", "view", kind, "err", err)
		return d, err
	}

	c.mu.Lock()
	c.flags = d.Flags
	if !d.Location.IsZero() {
		c.location = d.Location
	}
	c.mu.Unlock()

	switch d.Outcome {
	case view.RedirectLogin:
		c.setState(Unauthenticated)
	case view.PromptLocation:
		c.setState(AwaitingLocation)
	default:
		c.setState(ModeSelection)
	}
	return d, nil
}

// ShareLocation sends the coordinates, records the local location-shared flag
// and moves to ModeSelection. It is the only writer of that flag.
func (c *Controller) ShareLocation(ctx context.Context, latitude, longitude float64) (ghostapi.Location, error) {
	loc, err := c.api.ShareLocation(ctx, latitude, longitude)
	if err != nil {
		c.fail(ctx, "share location", err)
		return ghostapi.Location{}, err
	}
	if err := c.store.SetLocationShared(ctx, true); err != nil {
		err = fmt.Errorf("lifecycle: store location flag: %w", err)
		c.fail(ctx, "share location", err)
		return loc, err
	}

	c.mu.Lock()
	c.flags.LocationShared = true
	if !loc.IsZero() {
		c.location = loc
	}
	state := c.state
	c.mu.Unlock()

	observe.Logger(ctx).Info("lifecycle: location shared", "location", loc.String())
	if state == AwaitingLocation || state == Entering {
		c.setState(ModeSelection)
	} else {
		c.emit()
	}
	return loc, nil
}

// ── ghosts ───────────────────────────────────────────────────────────────────

// DiscoverGhosts returns at most the configured sample size of ghosts near the
// session location, in random order.
func (c *Controller) DiscoverGhosts(ctx context.Context) ([]ghostapi.Ghost, error) {
	loc, err := c.api.Location(ctx)
	if err != nil {
		c.fail(ctx, "discover ghosts", err)
		return nil, err
	}
	c.mu.Lock()
	c.location = loc
	k := c.cfg.GhostSample
	c.mu.Unlock()

	all, err := c.api.Ghosts(ctx, loc)
	if err != nil {
		c.fail(ctx, "discover ghosts", err)
		return nil, err
	}
	return c.sample(all, k), nil
}

func (c *Controller) sample(all []ghostapi.Ghost, k int) []ghostapi.Ghost {
	if k <= 0 || k > len(all) {
		k = len(all)
	}
	out := make([]ghostapi.Ghost, 0, k)
	for _, i := range c.perm(len(all))[:k] {
		out = append(out, all[i])
	}
	return out
}

// SelectGhost persists g as the selected ghost, locally and in the session
// cookie the backend reads.
func (c *Controller) SelectGhost(ctx context.Context, g ghostapi.Ghost) error {
	if err := c.api.SelectGhost(g.ID); err != nil {
		c.fail(ctx, "select ghost", err)
		return err
	}
	if err := c.store.SetSelectedGhost(ctx, g); err != nil {
		err = fmt.Errorf("lifecycle: store selected ghost: %w", err)
		c.fail(ctx, "select ghost", err)
		return err
	}
	c.mu.Lock()
	c.ghost = g
	c.mu.Unlock()
	observe.Logger(ctx).Info("lifecycle: ghost selected", "ghost", g.Name, "ghost_id", g.ID)
	c.emit()
	return nil
}

// ── history & logout ─────────────────────────────────────────────────────────

// History lists the saved conversations.
func (c *Controller) History(ctx context.Context) ([]ghostapi.Conversation, error) {
	convs, err := c.api.Conversations(ctx)
	if err != nil {
		c.fail(ctx, "history", err)
		return nil, err
	}
	return convs, nil
}

// Logout ends the session and forgets the selected ghost. The controller moves
// to Unauthenticated even when the remote call fails.
func (c *Controller) Logout(ctx context.Context) error {
	err := c.api.Logout(ctx)
	if cerr := c.store.ClearSelectedGhost(ctx); cerr != nil {
		observe.Logger(ctx).Warn("lifecycle: clear selected ghost", "err", cerr)
	}

	c.mu.Lock()
	c.flags = view.SessionFlags{}
	c.ghost = ghostapi.Ghost{}
	c.mu.Unlock()
	c.setState(Unauthenticated)

	if err != nil {
		c.fail(ctx, "logout", err)
	}
	return err
}

func newConversationID() string { return uuid.NewString() }

func randomPerm(n int) []int { return rand.Perm(n) }
