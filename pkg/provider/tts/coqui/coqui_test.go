package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/phantomlink/pkg/provider/stt/utterance"
	"github.com/MrWong99/phantomlink/pkg/provider/tts"
)

// pcmFor gives each sentence a recognisable payload: its first byte repeated.
func pcmFor(sentence string) []byte { return bytes.Repeat([]byte{sentence[0]}, 6) }

func collect(t *testing.T, p *Provider, text string, voice tts.VoiceProfile) []byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frames, err := p.Synthesize(ctx, text, voice)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	var pcm []byte
	for f := range frames {
		if f.SampleRate != 22050 || f.Channels != 1 {
			t.Errorf("frame format = %d Hz/%d ch, want 22050/1", f.SampleRate, f.Channels)
		}
		pcm = append(pcm, f.Data...)
	}
	return pcm
}

func TestSynthesize_StandardKeepsSentenceOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tts" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		text := r.URL.Query().Get("text")
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		mu.Unlock()
		// The first sentence is the slowest to synthesise.
		if strings.HasPrefix(text, "Who") {
			time.Sleep(50 * time.Millisecond)
		}
		_, _ = w.Write(utterance.EncodeWAV(pcmFor(text), 22050, 1))
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	got := collect(t, p, "Who is there? Leave this place!  Now.", tts.VoiceProfile{ID: "p225", Language: "de-DE"})

	want := append(append(pcmFor("Who"), pcmFor("Leave")...), pcmFor("Now")...)
	if !bytes.Equal(got, want) {
		t.Errorf("pcm = %q, want %q", got, want)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(queries) != 3 {
		t.Fatalf("requests = %d, want 3", len(queries))
	}
	for _, q := range queries {
		if !strings.Contains(q, "speaker_id=p225") || !strings.Contains(q, "language_id=de") {
			t.Errorf("query %q missing speaker or language", q)
		}
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	bodies := make(chan map[string]string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts_to_audio/" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		_, _ = w.Write(utterance.EncodeWAV(pcmFor(body["text"]), 22050, 1))
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithAPIMode(APIModeXTTS), WithLanguage("fr"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Synthesize(context.Background(), "Boo.", tts.VoiceProfile{}); err == nil {
		t.Error("Synthesize without a voice in xtts mode: want error")
	}

	got := collect(t, p, "Boo.", tts.VoiceProfile{ID: "Claribel Dervla"})
	if !bytes.Equal(got, pcmFor("Boo")) {
		t.Errorf("pcm = %q", got)
	}
	want := map[string]string{"text": "Boo.", "speaker_wav": "Claribel Dervla", "language": "fr"}
	if diff := cmp.Diff(want, <-bodies); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}
}

func TestSynthesize_StopsAtFailedSentence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text := r.URL.Query().Get("text")
		if strings.HasPrefix(text, "Second") {
			// Fail only after the first sentence has been delivered.
			time.Sleep(50 * time.Millisecond)
			http.Error(w, "model crashed", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(utterance.EncodeWAV(pcmFor(text), 22050, 1))
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	got := collect(t, p, "First. Second. Third.", tts.VoiceProfile{})
	if !bytes.Equal(got, pcmFor("First")) {
		t.Errorf("pcm = %q, want only the first sentence", got)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, _ := New("http://127.0.0.1:1")
	if _, err := p.Synthesize(context.Background(), "   ", tts.VoiceProfile{}); err == nil {
		t.Error("Synthesize of blank text: want error")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty server URL")
	}
	if _, err := New("http://localhost:5002", WithAPIMode("tortoise")); err == nil {
		t.Error("expected error for unknown api mode")
	}
}

func TestListVoices(t *testing.T) {
	tests := []struct {
		name  string
		mode  APIMode
		path  string
		reply string
		want  []tts.VoiceProfile
	}{
		{
			name:  "standard multi speaker",
			mode:  APIModeStandard,
			path:  "/details",
			reply: `{"model_name":"vctk/vits","speakers":["p326","p225"]}`,
			want: []tts.VoiceProfile{
				{ID: "p225", Name: "p225", Provider: "coqui", Metadata: map[string]string{"type": "speaker", "model_name": "vctk/vits"}},
				{ID: "p326", Name: "p326", Provider: "coqui", Metadata: map[string]string{"type": "speaker", "model_name": "vctk/vits"}},
			},
		},
		{
			name:  "standard single speaker",
			mode:  APIModeStandard,
			path:  "/details",
			reply: `{"model_name":"ljspeech/vits","speakers":null}`,
			want: []tts.VoiceProfile{
				{ID: "ljspeech/vits", Name: "ljspeech/vits", Provider: "coqui", Metadata: map[string]string{"type": "single-speaker", "model_name": "ljspeech/vits"}},
			},
		},
		{
			name:  "xtts studio speakers",
			mode:  APIModeXTTS,
			path:  "/studio_speakers",
			reply: `{"Daisy Studious":{},"Claribel Dervla":{}}`,
			want: []tts.VoiceProfile{
				{ID: "Claribel Dervla", Name: "Claribel Dervla", Provider: "coqui", Metadata: map[string]string{"type": "studio"}},
				{ID: "Daisy Studious", Name: "Daisy Studious", Provider: "coqui", Metadata: map[string]string{"type": "studio"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tt.path {
					http.NotFound(w, r)
					return
				}
				_, _ = w.Write([]byte(tt.reply))
			}))
			defer srv.Close()

			p, _ := New(srv.URL, WithAPIMode(tt.mode))
			got, err := p.ListVoices(context.Background())
			if err != nil {
				t.Fatalf("ListVoices: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ListVoices mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello there. Who calls?", []string{"Hello there.", "Who calls?"}},
		{"It was 3.14 degrees colder!", []string{"It was 3.14 degrees colder!"}},
		{"No ending", []string{"No ending"}},
		{"Wait...  what?", []string{"Wait...", "what?"}},
		{"  ", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, splitSentences(tt.in)); diff != "" {
			t.Errorf("splitSentences(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestParseWAV_SkipsExtraChunks(t *testing.T) {
	plain := utterance.EncodeWAV([]byte{1, 2, 3, 4}, 24000, 2)

	// Insert an odd-sized LIST chunk, padded to a word boundary, before data.
	var wav bytes.Buffer
	wav.Write(plain[:36])
	wav.WriteString("LIST")
	_ = binary.Write(&wav, binary.LittleEndian, uint32(3))
	wav.Write([]byte{'a', 'b', 'c', 0})
	wav.Write(plain[36:])

	c, err := parseWAV(wav.Bytes())
	if err != nil {
		t.Fatalf("parseWAV: %v", err)
	}
	if c.sampleRate != 24000 || c.channels != 2 || !bytes.Equal(c.pcm, []byte{1, 2, 3, 4}) {
		t.Errorf("clip = %+v", c)
	}

	if _, err := parseWAV([]byte("not a wav file")); err == nil {
		t.Error("parseWAV of garbage: want error")
	}
}
