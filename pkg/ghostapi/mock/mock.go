// Package mock provides a scriptable, call-recording [ghostapi.API] for tests.
//
// Set the exported result fields before use and inspect the call counters
// afterwards. All methods are safe for concurrent use.
//
//	api := &mock.API{Username: "casper", ChatResult: ghostapi.ChatReply{Reply: "Boo!", Sentiment: 4}}
//	ctrl := lifecycle.New(api, ...)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/phantomlink/pkg/ghostapi"
)

// API is a mock implementation of [ghostapi.API].
type API struct {
	mu sync.Mutex

	Username string
	MeErr    error

	LocationResult ghostapi.Location
	LocationErr    error

	ShareResult ghostapi.Location
	ShareErr    error

	GhostsResult []ghostapi.Ghost
	GhostsErr    error

	SelectErr error

	ChatResult ghostapi.ChatReply
	ChatErr    error
	// ChatHook, when set, runs inside Chat before the result is returned. Use
	// it to block a request or observe state while a request is in flight.
	ChatHook func(ctx context.Context, message string)

	EndResult ghostapi.EndResult
	EndErr    error

	ResetErr  error
	LogoutErr error

	ConversationsResult []ghostapi.Conversation
	ConversationsErr    error

	// Calls records method names in invocation order.
	Calls []string

	// ChatMessages records every message passed to Chat.
	ChatMessages []string

	// ShareCalls records coordinates passed to ShareLocation.
	ShareCalls [][2]float64

	// SelectedGhosts records every id passed to SelectGhost.
	SelectedGhosts []int
}

var _ ghostapi.API = (*API)(nil)

func (a *API) record(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls = append(a.Calls, name)
}

// CallCount returns how many times the named method was called.
func (a *API) CallCount(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.Calls {
		if c == name {
			n++
		}
	}
	return n
}

// CallLog returns a copy of Calls.
func (a *API) CallLog() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.Calls...)
}

// Me implements [ghostapi.API].
func (a *API) Me(context.Context) (string, error) {
	a.record("Me")
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Username, a.MeErr
}

// Location implements [ghostapi.API].
func (a *API) Location(context.Context) (ghostapi.Location, error) {
	a.record("Location")
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.LocationErr != nil {
		return ghostapi.Location{}, a.LocationErr
	}
	if a.LocationResult.IsZero() {
		return ghostapi.Location{}, ghostapi.ErrLocationNotShared
	}
	return a.LocationResult, nil
}

// ShareLocation implements [ghostapi.API].
func (a *API) ShareLocation(_ context.Context, lat, lon float64) (ghostapi.Location, error) {
	a.record("ShareLocation")
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ShareCalls = append(a.ShareCalls, [2]float64{lat, lon})
	if a.ShareErr != nil {
		return ghostapi.Location{}, a.ShareErr
	}
	a.LocationResult = a.ShareResult
	return a.ShareResult, nil
}

// Ghosts implements [ghostapi.API].
func (a *API) Ghosts(context.Context, ghostapi.Location) ([]ghostapi.Ghost, error) {
	a.record("Ghosts")
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ghostapi.Ghost(nil), a.GhostsResult...), a.GhostsErr
}

// SelectGhost implements [ghostapi.API].
func (a *API) SelectGhost(id int) error {
	a.record("SelectGhost")
	a.mu.Lock()
	defer a.mu.Unlock()
	a.SelectedGhosts = append(a.SelectedGhosts, id)
	return a.SelectErr
}

// Chat implements [ghostapi.API].
func (a *API) Chat(ctx context.Context, message string) (ghostapi.ChatReply, error) {
	a.record("Chat")
	a.mu.Lock()
	a.ChatMessages = append(a.ChatMessages, message)
	hook := a.ChatHook
	a.mu.Unlock()

	if hook != nil {
		hook(ctx, message)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ChatResult, a.ChatErr
}

// EndConversation implements [ghostapi.API].
func (a *API) EndConversation(context.Context) (ghostapi.EndResult, error) {
	a.record("EndConversation")
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.EndResult, a.EndErr
}

// ResetSession implements [ghostapi.API].
func (a *API) ResetSession(context.Context) error {
	a.record("ResetSession")
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ResetErr
}

// Logout implements [ghostapi.API].
func (a *API) Logout(context.Context) error {
	a.record("Logout")
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.LogoutErr
}

// Conversations implements [ghostapi.API].
func (a *API) Conversations(context.Context) ([]ghostapi.Conversation, error) {
	a.record("Conversations")
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ghostapi.Conversation(nil), a.ConversationsResult...), a.ConversationsErr
}

// SetChat replaces the chat result under the lock.
func (a *API) SetChat(reply ghostapi.ChatReply, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ChatResult, a.ChatErr = reply, err
}
