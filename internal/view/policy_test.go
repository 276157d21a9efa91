package view_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/phantomlink/internal/localstore"
	"github.com/MrWong99/phantomlink/internal/view"
	"github.com/MrWong99/phantomlink/pkg/ghostapi"
	"github.com/MrWong99/phantomlink/pkg/ghostapi/mock"
)

func newStore(t *testing.T, shared bool) *localstore.Store {
	t.Helper()
	s := localstore.New(localstore.NewMemory())
	if shared {
		if err := s.SetLocationShared(context.Background(), true); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestResolve_AnonymousRedirectsWithoutFurtherQueries(t *testing.T) {
	t.Parallel()
	for _, kind := range []view.Kind{view.Home, view.Ghosts, view.Loading, view.Conversation, view.History} {
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()
			api := &mock.API{LocationResult: ghostapi.Location{City: "Salem"}}
			d, err := view.NewPolicy(api, newStore(t, true)).Resolve(context.Background(), kind)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if d.Outcome != view.RedirectLogin {
				t.Errorf("Outcome = %v, want redirect-login", d.Outcome)
			}
			if diff := cmp.Diff([]string{"Me"}, api.CallLog()); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_UnauthenticatedErrorRedirects(t *testing.T) {
	t.Parallel()
	api := &mock.API{MeErr: &ghostapi.RemoteError{Op: "GET /me", Status: 401, Err: ghostapi.ErrUnauthenticated}}
	d, err := view.NewPolicy(api, newStore(t, false)).Resolve(context.Background(), view.History)
	if err != nil || d.Outcome != view.RedirectLogin {
		t.Errorf("Resolve = (%v, %v), want redirect-login", d.Outcome, err)
	}
}

func TestResolve_TransportFailureIsAnError(t *testing.T) {
	t.Parallel()
	api := &mock.API{MeErr: &ghostapi.RemoteError{Op: "GET /me", Err: errors.New("connection refused")}}
	d, err := view.NewPolicy(api, newStore(t, false)).Resolve(context.Background(), view.Conversation)
	if err == nil {
		t.Fatal("expected error")
	}
	if d.Outcome != view.Proceed {
		t.Errorf("no redirect expected on transport failure, got %v", d.Outcome)
	}
}

func TestResolve_LocationGates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		kind        view.Kind
		localShared bool
		serverLoc   ghostapi.Location
		want        view.Outcome
		wantCalls   []string
	}{
		{"home without local flag", view.Home, false, ghostapi.Location{}, view.PromptLocation, []string{"Me"}},
		{"home with local flag", view.Home, true, ghostapi.Location{}, view.Proceed, []string{"Me"}},
		{"loading without local flag", view.Loading, false, ghostapi.Location{}, view.PromptLocation, []string{"Me"}},
		{"ghosts without server location", view.Ghosts, true, ghostapi.Location{}, view.PromptLocation, []string{"Me", "Location"}},
		{"ghosts with server location", view.Ghosts, false, ghostapi.Location{City: "Salem", State: "Oregon"}, view.Proceed, []string{"Me", "Location"}},
		{"conversation ignores location", view.Conversation, false, ghostapi.Location{}, view.Proceed, []string{"Me"}},
		{"history ignores location", view.History, false, ghostapi.Location{}, view.Proceed, []string{"Me"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := &mock.API{Username: "casper", LocationResult: tt.serverLoc}
			d, err := view.NewPolicy(api, newStore(t, tt.localShared)).Resolve(context.Background(), tt.kind)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if d.Outcome != tt.want {
				t.Errorf("Outcome = %v, want %v", d.Outcome, tt.want)
			}
			if d.Flags.Username != "casper" || !d.Flags.Authenticated || d.Flags.LocationShared != tt.localShared {
				t.Errorf("Flags = %+v", d.Flags)
			}
			if tt.want == view.Proceed && tt.kind == view.Ghosts && d.Location != tt.serverLoc {
				t.Errorf("Location = %+v", d.Location)
			}
			if diff := cmp.Diff(tt.wantCalls, api.CallLog()); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_UnknownKind(t *testing.T) {
	t.Parallel()
	api := &mock.API{Username: "casper"}
	if _, err := view.NewPolicy(api, newStore(t, false)).Resolve(context.Background(), view.Kind(99)); err == nil {
		t.Error("expected error for unknown view")
	}
	if len(api.CallLog()) != 0 {
		t.Error("unknown view must not query the backend")
	}
}
