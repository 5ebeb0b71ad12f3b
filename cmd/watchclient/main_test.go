package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	hub "github.com/wricardo/mcp-training/watchparty/transport/websocket"
	"github.com/wricardo/mcp-training/watchparty/watch/config"
	"github.com/wricardo/mcp-training/watchparty/watch/party"
)

func TestParseCommand(t *testing.T) {
	withVideo := party.PlayerState{
		SourceReference:   "https://youtu.be/abc",
		PlayableReference: "https://www.youtube.com/embed/abc",
		EventKind:         party.EventNone,
	}

	tests := []struct {
		name     string
		line     string
		cur      party.PlayerState
		wantKind party.EventKind
		wantOK   bool
		wantErr  bool
	}{
		{"blank line", "   ", withVideo, party.EventNone, false, false},
		{"play", "play", withVideo, party.EventPlay, true, false},
		{"case insensitive", "PAUSE", withVideo, party.EventPause, true, false},
		{"stop", "stop", withVideo, party.EventStop, true, false},
		{"seek", "seek", withVideo, party.EventSeek, true, false},
		{"mute", "mute", withVideo, party.EventMuted, true, false},
		{"unmute", "unmute", withVideo, party.EventUnmuted, true, false},
		{"volume", "volume", withVideo, party.EventVolumeChanged, true, false},
		{"source", "source https://youtu.be/xyz", party.PlayerState{}, party.EventSourceChanged, true, false},
		{"source without url", "source", withVideo, party.EventNone, false, true},
		{"play without video", "play", party.PlayerState{EventKind: party.EventNone}, party.EventNone, false, true},
		{"unknown command", "rewind", withVideo, party.EventNone, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok, err := parseCommand(tt.line, tt.cur)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && next.EventKind != tt.wantKind {
				t.Errorf("kind = %s, want %s", next.EventKind, tt.wantKind)
			}
			if !ok && next != tt.cur {
				t.Errorf("state changed on rejected line: %+v", next)
			}
		})
	}
}

func TestParseCommandSource(t *testing.T) {
	next, ok, err := parseCommand("source https://youtu.be/abc https://www.youtube.com/embed/abc", party.PlayerState{})
	if err != nil || !ok {
		t.Fatalf("parse failed: ok=%v err=%v", ok, err)
	}
	if next.SourceReference != "https://youtu.be/abc" {
		t.Errorf("source = %s", next.SourceReference)
	}
	if next.PlayableReference != "https://www.youtube.com/embed/abc" {
		t.Errorf("playable = %s", next.PlayableReference)
	}

	// Later commands keep the video
	paused, _, _ := parseCommand("pause", next)
	if paused.PlayableReference != next.PlayableReference {
		t.Error("pause lost the playable reference")
	}
}

func TestParseCommandQuit(t *testing.T) {
	for _, line := range []string{"quit", "exit"} {
		if _, _, err := parseCommand(line, party.PlayerState{}); err != errQuit {
			t.Errorf("%s: expected errQuit, got %v", line, err)
		}
	}
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{
			name: "roster",
			data: `{"event":"roster-updated","payload":[{"id":"u1","name":"Ana","role":"administrator"},{"id":"u2","role":"participant"}]}`,
			want: "roster (2): u1 Ana [administrator], u2 [participant]",
		},
		{
			name: "empty roster",
			data: `{"event":"roster-updated","payload":[]}`,
			want: "roster (0): ",
		},
		{
			name: "player state",
			data: `{"event":"player-state-broadcast","payload":{"playableReference":"https://x/embed","eventKind":"seek","playlist":[1]}}`,
			want: "state seek https://x/embed",
		},
		{
			name: "unknown event",
			data: `{"event":"hello","payload":{"a":1}}`,
			want: `event hello: {"a":1}`,
		},
		{
			name: "not json",
			data: `garbage`,
			want: "? garbage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatEvent([]byte(tt.data)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// syncBuffer is a bytes.Buffer safe for the reader and command goroutines
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestScanLinesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan string)
	finished := make(chan struct{})
	go func() {
		scanLines(ctx, strings.NewReader("play\npause\n"), lines)
		close(finished)
	}()

	// Nobody reads lines once run has returned
	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("scanLines blocked after cancel")
	}
	for range lines {
	}
}

func TestRunAgainstHub(t *testing.T) {
	h := hub.NewHub()
	ts := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer ts.Close()
	defer h.Shutdown(context.Background())

	stdin, input := io.Pipe()
	defer input.Close()
	out := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := options{
		URL:         "ws" + strings.TrimPrefix(ts.URL, "http"),
		Participant: party.Participant{ID: "cli-1", Name: "Ana", Role: party.RoleParticipant},
	}
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, opts, stdin, out, config.Discard()) }()

	waitFor(t, "roster", func() bool { return strings.Contains(out.String(), "roster (1): cli-1 Ana [participant]") })

	fmt.Fprintln(input, "play")
	waitFor(t, "no-video warning", func() bool { return strings.Contains(out.String(), "! no video yet") })

	fmt.Fprintln(input, "source https://youtu.be/abc")
	waitFor(t, "source broadcast", func() bool { return strings.Contains(out.String(), "state sourceChanged https://youtu.be/abc") })

	fmt.Fprintln(input, "play")
	waitFor(t, "play broadcast", func() bool { return strings.Contains(out.String(), "state play https://youtu.be/abc") })

	if got := h.Participants(); len(got) != 1 || got[0].ID != "cli-1" {
		t.Errorf("unexpected hub roster: %+v", got)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	waitFor(t, "hub cleanup", func() bool { return len(h.Participants()) == 0 })
}
