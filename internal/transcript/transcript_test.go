package transcript_test

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/phantomlink/internal/transcript"
)

func TestTranscript_AppendKeepsOrder(t *testing.T) {
	t.Parallel()
	var tr transcript.Transcript
	tr.Append(transcript.Turn{Role: transcript.RoleUser, Content: "Hello"})
	tr.Append(transcript.Turn{Role: transcript.RoleGhost, Content: "Boo!"})

	want := []transcript.Turn{
		{Role: transcript.RoleUser, Content: "Hello"},
		{Role: transcript.RoleGhost, Content: "Boo!"},
	}
	if diff := cmp.Diff(want, tr.Turns()); diff != "" {
		t.Errorf("Turns() mismatch (-want +got):\n%s", diff)
	}

	last, ok := tr.Last()
	if !ok || last.Content != "Boo!" {
		t.Errorf("Last: got (%+v, %v)", last, ok)
	}
}

func TestTranscript_TurnsIsACopy(t *testing.T) {
	t.Parallel()
	var tr transcript.Transcript
	tr.Append(transcript.Turn{Role: transcript.RoleUser, Content: "a"})

	turns := tr.Turns()
	turns[0].Content = "mutated"

	if got := tr.Turns()[0].Content; got != "a" {
		t.Errorf("internal turn mutated through copy: %q", got)
	}
}

func TestTranscript_Clear(t *testing.T) {
	t.Parallel()
	var tr transcript.Transcript
	tr.Append(transcript.Turn{Role: transcript.RoleUser, Content: "a"})
	tr.Clear()

	if tr.Len() != 0 {
		t.Errorf("Len after Clear: got %d", tr.Len())
	}
	if _, ok := tr.Last(); ok {
		t.Error("Last should report false on empty transcript")
	}
}

func TestTranscript_String(t *testing.T) {
	t.Parallel()
	var tr transcript.Transcript
	tr.Append(transcript.Turn{Role: transcript.RoleUser, Content: "Hello"})
	tr.Append(transcript.Turn{Role: transcript.RoleGhost, Content: "Boo!"})

	want := "user: Hello\n\nghost: Boo!"
	if got := tr.String(); got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
}

func TestTranscript_ConcurrentAppend(t *testing.T) {
	t.Parallel()
	var tr transcript.Transcript
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			tr.Append(transcript.Turn{Role: transcript.RoleUser, Content: "x"})
		})
	}
	wg.Wait()
	if tr.Len() != 50 {
		t.Errorf("Len: got %d, want 50", tr.Len())
	}
}

func TestRole_IsValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		role transcript.Role
		want bool
	}{
		{transcript.RoleUser, true},
		{transcript.RoleGhost, true},
		{"narrator", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			t.Parallel()
			if got := tt.role.IsValid(); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}
