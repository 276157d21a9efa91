package lifecycle

import (
	"context"
	"fmt"

	"github.com/MrWong99/phantomlink/internal/input"
	"github.com/MrWong99/phantomlink/internal/observe"
	"github.com/MrWong99/phantomlink/internal/scheduler"
)

// maxDots is the longest progress-dot run before it wraps to none.
const maxDots = 3

// BeginSearch resets the server-side conversation and runs the simulated ghost
// search for mode. The conversation starts by itself once the configured
// search duration has elapsed. It is valid from ModeSelection and Ended.
//
// A failed reset aborts the search.
func (c *Controller) BeginSearch(ctx context.Context, mode input.Mode) error {
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state != ModeSelection && c.state != Ended {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: begin search in %s", ErrWrongState, state)
	}
	c.mu.Unlock()

	if err := c.api.ResetSession(ctx); err != nil {
		err = fmt.Errorf("lifecycle: prepare search: %w", err)
		c.fail(ctx, "search", err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.searchGrp != nil {
		c.searchGrp.StopAll()
	}
	grp := scheduler.NewGroup(c.group)
	c.searchGrp = grp
	c.mode = mode
	c.hintIdx = 0
	c.search = SearchStatus{Message: SearchingMessage, Hint: c.hintLocked(), Dots: maxDots}
	cfg := c.cfg
	c.mu.Unlock()

	grp.AfterFunc(cfg.SearchFound, func() {
		c.updateSearch(grp, func(s *SearchStatus) {
			s.Message = FoundMessage
			s.Found = true
		})
	})
	if cfg.HintInterval > 0 && len(cfg.Hints) > 1 {
		grp.Every(cfg.HintInterval, func() {
			c.updateSearch(grp, func(s *SearchStatus) {
				c.hintIdx++
				s.Hint = c.hintLocked()
			})
		})
	}
	if cfg.DotsInterval > 0 {
		grp.Every(cfg.DotsInterval, func() {
			c.updateSearch(grp, func(s *SearchStatus) { s.Dots = (s.Dots + 1) % (maxDots + 1) })
		})
	}
	grp.AfterFunc(cfg.SearchDuration, func() { c.finishSearch(grp) })

	observe.Logger(ctx).Info("lifecycle: searching for ghosts", "mode", mode.String())
	c.setState(Searching)

	if c.sounds.Loading != nil {
		if err := c.sounds.Loading.Play(); err != nil {
			observe.Logger(ctx).Warn("lifecycle: play loading track", "err", err)
		}
	}
	return nil
}

// updateSearch applies fn to the search status if grp is still the live
// search, then publishes a snapshot.
func (c *Controller) updateSearch(grp *scheduler.Group, fn func(*SearchStatus)) {
	c.mu.Lock()
	if c.searchGrp != grp || c.state != Searching {
		c.mu.Unlock()
		return
	}
	fn(&c.search)
	c.mu.Unlock()
	c.emit()
}

func (c *Controller) finishSearch(grp *scheduler.Group) {
	c.mu.Lock()
	if c.searchGrp != grp || c.state != Searching {
		c.mu.Unlock()
		return
	}
	mode := c.mode
	c.mu.Unlock()

	if err := c.StartConversation(context.Background(), mode); err != nil {
		c.fail(context.Background(), "start conversation", err)
	}
}

// stopSearchLocked cancels the search timers and clears the status. c.mu must
// be held. The loading track is stopped by the caller after unlocking.
func (c *Controller) stopSearchLocked() (wasSearching bool) {
	if c.searchGrp == nil {
		return false
	}
	c.searchGrp.StopAll()
	c.searchGrp = nil
	c.search = SearchStatus{}
	return true
}

func (c *Controller) hintLocked() string {
	if len(c.cfg.Hints) == 0 {
		return ""
	}
	return c.cfg.Hints[c.hintIdx%len(c.cfg.Hints)]
}
