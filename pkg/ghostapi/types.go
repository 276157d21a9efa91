package ghostapi

import (
	"errors"
	"fmt"
	"time"
)

// SavedMessage is the exact confirmation the backend returns once a
// conversation has been persisted. Any other body means the save failed.
const SavedMessage = "Conversation saved successfully."

// SelectedGhostCookie is the cookie naming the ghost a conversation should
// impersonate. The backend reads it on the first chat message.
const SelectedGhostCookie = "selectedGhostId"

// SelectedGhostMaxAge is the lifetime of [SelectedGhostCookie].
const SelectedGhostMaxAge = time.Hour

var (
	// ErrUnauthenticated is returned when the backend rejects the session.
	ErrUnauthenticated = errors.New("ghostapi: not authenticated")

	// ErrLocationNotShared is returned by Location when the session has no
	// resolved location yet.
	ErrLocationNotShared = errors.New("ghostapi: location not shared yet")

	// ErrMalformedResponse is returned when a 2xx body is missing required
	// fields or cannot be decoded.
	ErrMalformedResponse = errors.New("ghostapi: malformed response")
)

// RemoteError describes a failed backend call: a transport failure (Status 0)
// or a non-2xx response.
type RemoteError struct {
	// Op is the endpoint, e.g. "POST /chat".
	Op string

	// Status is the HTTP status code, or 0 when no response was received.
	Status int

	// Message is the "error" field of the response body, if any.
	Message string

	// Err is the underlying cause; [ErrUnauthenticated] for 401 responses.
	Err error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Status == 0:
		return fmt.Sprintf("ghostapi: %s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("ghostapi: %s: status %d: %s", e.Op, e.Status, e.Message)
	default:
		return fmt.Sprintf("ghostapi: %s: status %d", e.Op, e.Status)
	}
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Temporary reports whether retrying later could succeed: transport failures,
// rate limiting and server errors.
func (e *RemoteError) Temporary() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}

// Location is a resolved city and state.
type Location struct {
	City  string `json:"city"`
	State string `json:"state"`
}

// IsZero reports whether no city is known.
func (l Location) IsZero() bool { return l.City == "" }

func (l Location) String() string {
	if l.State == "" {
		return l.City
	}
	return l.City + ", " + l.State
}

// Ghost is one entry of the ghost catalogue.
type Ghost struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	City     string `json:"city"`
	State    string `json:"state,omitempty"`
	ImageURL string `json:"image_url"`
}

// ChatReply is the backend's answer to one user message. Sentiment is the
// cumulative score for the conversation so far; it is NaN when the backend
// omitted it.
type ChatReply struct {
	Reply     string
	Sentiment float64
}

// EndResult is the backend's answer to an end-conversation request.
type EndResult struct {
	Message string
}

// Saved reports whether the conversation was persisted.
func (r EndResult) Saved() bool { return r.Message == SavedMessage }

// Conversation is one saved conversation from the history.
type Conversation struct {
	ID        int       `json:"id"`
	GhostName string    `json:"ghost_name"`
	ChatLog   string    `json:"chat_log"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"-"`
}
