package openai

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
	"testing"

	"github.com/MrWong99/phantomlink/pkg/provider/stt"
)

type upload struct {
	model    string
	language string
	wavSize  int
	auth     string
}

func newServer(t *testing.T, status int, text string, got chan<- upload) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if got != nil {
			got <- upload{
				model:    r.FormValue("model"),
				language: r.FormValue("language"),
				wavSize:  len(data),
				auth:     r.Header.Get("Authorization"),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "bad audio"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func speech(ms int) []byte {
	samples := 16 * ms
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") should fail")
	}
}

func TestTranscribe_UploadsUtterance(t *testing.T) {
	got := make(chan upload, 1)
	srv := newServer(t, http.StatusOK, "  is anyone there?  ", got)
	p, err := New("sk-test", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	tr, err := p.Transcribe(context.Background(), bytes.NewReader(speech(200)), stt.Config{SampleRate: 16000, Language: "en-US"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "is anyone there?" {
		t.Errorf("Text = %q", tr.Text)
	}
	u := <-got
	if u.model != defaultModel {
		t.Errorf("model = %q, want %q", u.model, defaultModel)
	}
	if u.language != "en" {
		t.Errorf("language = %q, want en", u.language)
	}
	if want := 44 + len(speech(200)); u.wavSize != want {
		t.Errorf("wav size = %d, want %d", u.wavSize, want)
	}
	if u.auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", u.auth)
	}
}

func TestTranscribe_Silence(t *testing.T) {
	p, _ := New("sk-test", WithBaseURL("http://127.0.0.1:1"))
	_, err := p.Transcribe(context.Background(), bytes.NewReader(make([]byte, 16000)), stt.Config{})
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

func TestTranscribe_EmptyText(t *testing.T) {
	srv := newServer(t, http.StatusOK, "", nil)
	p, _ := New("sk-test", WithBaseURL(srv.URL))
	_, err := p.Transcribe(context.Background(), bytes.NewReader(speech(100)), stt.Config{})
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

func TestTranscribe_APIError(t *testing.T) {
	srv := newServer(t, http.StatusBadRequest, "", nil)
	p, _ := New("sk-test", WithBaseURL(srv.URL))
	_, err := p.Transcribe(context.Background(), bytes.NewReader(speech(100)), stt.Config{})
	if err == nil || errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want an API error", err)
	}
}
