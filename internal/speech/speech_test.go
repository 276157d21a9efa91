package speech_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/phantomlink/internal/scheduler/mock"
	"github.com/MrWong99/phantomlink/internal/speech"
	audiomock "github.com/MrWong99/phantomlink/pkg/audio/mock"
	"github.com/MrWong99/phantomlink/pkg/provider/stt"
	sttmock "github.com/MrWong99/phantomlink/pkg/provider/stt/mock"
	"github.com/MrWong99/phantomlink/pkg/provider/tts"
	ttsmock "github.com/MrWong99/phantomlink/pkg/provider/tts/mock"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

// ── Host ─────────────────────────────────────────────────────────────────────

func TestHost_Availability(t *testing.T) {
	t.Parallel()
	if _, ok := (speech.Host{}).Recognizer(); ok {
		t.Error("zero Host must not offer recognition")
	}
	if _, ok := (speech.Host{}).Synthesizer(); ok {
		t.Error("zero Host must not offer synthesis")
	}
	h := speech.Host{Rec: speech.NewRecognizer(&audiomock.Source{}, &sttmock.Provider{}, "en-US")}
	if _, ok := h.Recognizer(); !ok {
		t.Error("recognizer should be available")
	}
}

// ── Recognizer ───────────────────────────────────────────────────────────────

func TestRecognizer_PassesFormatAndLanguage(t *testing.T) {
	t.Parallel()
	src := &audiomock.Source{Data: []byte{1, 2, 3, 4}}
	p := &sttmock.Provider{Results: []stt.Transcript{{Text: "hello ghost"}}}
	text, err := speech.NewRecognizer(src, p, "en-US").Recognize(context.Background())
	if err != nil || text != "hello ghost" {
		t.Fatalf("Recognize = (%q, %v)", text, err)
	}
	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d transcribe calls", len(calls))
	}
	want := stt.Config{SampleRate: 16000, Channels: 1, Language: "en-US"}
	if calls[0].Cfg != want || string(calls[0].Audio) != string(src.Data) {
		t.Errorf("call = %+v", calls[0])
	}
}

func TestRecognizer_CaptureError(t *testing.T) {
	t.Parallel()
	boom := errors.New("no microphone")
	src := &audiomock.Source{CaptureErr: boom}
	p := &sttmock.Provider{}
	if _, err := speech.NewRecognizer(src, p, "").Recognize(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(p.Calls()) != 0 {
		t.Error("provider must not be called when capture fails")
	}
}

func TestRecognizer_NoSpeech(t *testing.T) {
	t.Parallel()
	_, err := speech.NewRecognizer(&audiomock.Source{}, &sttmock.Provider{}, "").Recognize(context.Background())
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

// ── Voice selection ──────────────────────────────────────────────────────────

func TestSelectVoice(t *testing.T) {
	t.Parallel()
	voices := []tts.VoiceProfile{
		{ID: "1", Name: "Rachel"},
		{ID: "2", Name: "Marc - Deep Narrator"},
		{ID: "3", Name: "Mark - Natural Conversations"},
		{ID: "4", Name: "Domi"},
	}
	tests := []struct {
		name      string
		voices    []tts.VoiceProfile
		preferred string
		wantID    string
		wantOK    bool
	}{
		{"substring wins", voices, "mark", "3", true},
		{"phonetic match", []tts.VoiceProfile{{ID: "1", Name: "Rachel"}, {ID: "2", Name: "Marc"}}, "Mark", "2", true},
		{"fallback to first", voices, "Zephyrine", "1", true},
		{"empty preference", voices, "", "1", true},
		{"no voices", nil, "Mark", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v, ok := speech.SelectVoice(tt.voices, tt.preferred)
			if ok != tt.wantOK || v.ID != tt.wantID {
				t.Errorf("SelectVoice = (%q, %v), want (%q, %v)", v.ID, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

// ── Synthesizer ──────────────────────────────────────────────────────────────

func TestSynthesizer_SpeaksWithSelectedVoice(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{
		Chunks:           [][]byte{{1, 2}, {3, 4}},
		ListVoicesResult: []tts.VoiceProfile{{ID: "a", Name: "Adam"}, {ID: "m", Name: "Mark"}},
	}
	sink := &audiomock.Sink{}
	s := speech.NewSynthesizer(p, sink, mock.New())

	for range 2 {
		if err := s.Speak(context.Background(), "Boo!"); err != nil {
			t.Fatalf("Speak: %v", err)
		}
	}
	calls := p.SynthesizeCalls()
	if len(calls) != 2 {
		t.Fatalf("got %d synthesize calls", len(calls))
	}
	v := calls[0].Voice
	if v.ID != "m" || v.Language != "en-US" || v.Rate != 0.9 || v.Pitch != 1 {
		t.Errorf("voice = %+v", v)
	}
	if p.ListVoicesCalls() != 1 {
		t.Errorf("ListVoices called %d times, want voice cached after first use", p.ListVoicesCalls())
	}
	if got := len(sink.Received()); got != 4 {
		t.Errorf("sink received %d frames, want 4", got)
	}
}

func TestSynthesizer_WaitsForVoices(t *testing.T) {
	t.Parallel()
	clock := mock.New()
	p := &ttsmock.Provider{}
	s := speech.NewSynthesizer(p, &audiomock.Sink{}, clock, speech.WithVoicePoll(100*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- s.Speak(context.Background(), "hello") }()

	waitFor(t, func() bool { return clock.Pending() == 1 })
	clock.Advance(100 * time.Millisecond)
	waitFor(t, func() bool { return p.ListVoicesCalls() >= 2 })

	p.SetVoices([]tts.VoiceProfile{{ID: "x", Name: "Xavier"}})
	clock.Advance(100 * time.Millisecond)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Speak: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Speak did not resume after voices appeared")
	}
	if calls := p.SynthesizeCalls(); len(calls) != 1 || calls[0].Voice.ID != "x" {
		t.Errorf("synthesize calls = %+v", calls)
	}
	if clock.Pending() != 0 {
		t.Error("poll timer must be stopped once a voice is found")
	}
}

func TestSynthesizer_CancelWhileWaiting(t *testing.T) {
	t.Parallel()
	clock := mock.New()
	s := speech.NewSynthesizer(&ttsmock.Provider{}, &audiomock.Sink{}, clock)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Speak(ctx, "hello") }()
	waitFor(t, func() bool { return clock.Pending() == 1 })
	cancel()

	if err := <-done; !errors.Is(err, speech.ErrNoVoice) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if clock.Pending() != 0 {
		t.Error("poll timer leaked")
	}
}

func TestSynthesizer_Errors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	voices := []tts.VoiceProfile{{ID: "1", Name: "Mark"}}

	if err := speech.NewSynthesizer(&ttsmock.Provider{ListVoicesErr: boom}, &audiomock.Sink{}, mock.New()).
		Speak(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("list voices err = %v", err)
	}
	if err := speech.NewSynthesizer(&ttsmock.Provider{ListVoicesResult: voices, SynthesizeErr: boom}, &audiomock.Sink{}, mock.New()).
		Speak(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("synthesize err = %v", err)
	}
	if err := speech.NewSynthesizer(&ttsmock.Provider{ListVoicesResult: voices}, &audiomock.Sink{PlayErr: boom}, mock.New()).
		Speak(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("play err = %v", err)
	}
}
