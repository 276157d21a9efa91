package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/phantomlink/pkg/provider/stt"
)

// ── helpers ──────────────────────────────────────────────────────────────────

type inference struct {
	language string
	wavSize  int
}

func newServer(t *testing.T, text string, calls *atomic.Int32, got chan<- inference) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		calls.Add(1)
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if got != nil {
			got <- inference{language: r.FormValue("language"), wavSize: len(data)}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// speech returns ms milliseconds of a 440 Hz tone at 16 kHz mono.
func speech(ms int) []byte {
	samples := 16 * ms
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func silence(ms int) []byte { return make([]byte, 16*ms*2) }

func concat(parts ...[]byte) []byte { return bytes.Join(parts, nil) }

// ── tests ────────────────────────────────────────────────────────────────────

func TestNew_EmptyServerURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}

func TestTranscribe_StopsAtTrailingSilence(t *testing.T) {
	var calls atomic.Int32
	got := make(chan inference, 1)
	srv := newServer(t, "  hello spirit  ", &calls, got)
	p, _ := New(srv.URL, WithSilenceThresholdMs(200))

	audio := concat(silence(300), speech(400), silence(200), speech(1000))
	r := bytes.NewReader(audio)
	tr, err := p.Transcribe(context.Background(), r, stt.Config{Language: "en-US"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "hello spirit" {
		t.Errorf("Text = %q, want %q", tr.Text, "hello spirit")
	}
	inf := <-got
	if inf.language != "en" {
		t.Errorf("language = %q, want en", inf.language)
	}
	// Leading silence dropped, trailing speech not consumed.
	wantPCM := len(speech(400)) + len(silence(200))
	if inf.wavSize != 44+wantPCM {
		t.Errorf("wav size = %d, want %d", inf.wavSize, 44+wantPCM)
	}
	if r.Len() != len(speech(1000)) {
		t.Errorf("unread = %d bytes, want the second utterance untouched", r.Len())
	}
}

func TestTranscribe_EOFCommitsUtterance(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, "boo", &calls, nil)
	p, _ := New(srv.URL)

	tr, err := p.Transcribe(context.Background(), bytes.NewReader(speech(250)), stt.Config{})
	if err != nil || tr.Text != "boo" {
		t.Fatalf("Transcribe = (%+v, %v)", tr, err)
	}
}

func TestTranscribe_OnlySilence(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, "ignored", &calls, nil)
	p, _ := New(srv.URL)

	_, err := p.Transcribe(context.Background(), bytes.NewReader(silence(500)), stt.Config{})
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
	if calls.Load() != 0 {
		t.Error("server must not be called without speech")
	}
}

func TestTranscribe_EmptyText(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, "   ", &calls, nil)
	p, _ := New(srv.URL)

	if _, err := p.Transcribe(context.Background(), bytes.NewReader(speech(100)), stt.Config{}); !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

func TestTranscribe_MaxBufferForcesCommit(t *testing.T) {
	var calls atomic.Int32
	got := make(chan inference, 1)
	srv := newServer(t, "long", &calls, got)
	p, _ := New(srv.URL, WithMaxBufferDurationMs(100))

	if _, err := p.Transcribe(context.Background(), bytes.NewReader(speech(1000)), stt.Config{}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if inf := <-got; inf.wavSize != 44+len(speech(100)) {
		t.Errorf("wav size = %d, want %d", inf.wavSize, 44+len(speech(100)))
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	p, _ := New(srv.URL)

	_, err := p.Transcribe(context.Background(), bytes.NewReader(speech(100)), stt.Config{})
	if err == nil || errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want a server error", err)
	}
	if !strings.Contains(err.Error(), "HTTP 500: boom") {
		t.Errorf("err = %v, want status and body", err)
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	p, _ := New("http://127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, bytes.NewReader(speech(100)), stt.Config{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
