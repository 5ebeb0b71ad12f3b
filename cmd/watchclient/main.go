// Command watchclient joins a watch party hub from the terminal.
//
// It registers as a participant, prints every roster and player-state event
// the hub sends, and turns lines typed on stdin into player-state changes:
//
//	source <url> [playable-url]   switch video
//	play | pause | stop | seek    playback
//	mute | unmute | volume        audio
//	quit                          leave
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"
	hub "github.com/wricardo/mcp-training/watchparty/transport/websocket"
	"github.com/wricardo/mcp-training/watchparty/watch/config"
	"github.com/wricardo/mcp-training/watchparty/watch/party"
)

const writeWait = 10 * time.Second

var errQuit = errors.New("quit")

type options struct {
	URL         string
	Participant party.Participant
	Source      string
}

func main() {
	cmd := &cli.Command{
		Name:  "watchclient",
		Usage: "Join a watch party hub from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "ws://localhost:8080/ws", Usage: "Hub websocket URL", Sources: cli.EnvVars("WATCHPARTY_URL")},
			&cli.StringFlag{Name: "id", Usage: "Participant id (random when empty)"},
			&cli.StringFlag{Name: "name", Usage: "Display name"},
			&cli.StringFlag{Name: "role", Value: string(party.RoleParticipant), Usage: "participant or administrator"},
			&cli.StringFlag{Name: "source", Usage: "Video URL used until a source command changes it"},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "Diagnostics level (written to stderr)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.String("id")
			if id == "" {
				id = uuid.NewString()
			}
			role := party.Role(cmd.String("role"))
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}

			opts := options{
				URL:         cmd.String("url"),
				Participant: party.Participant{ID: id, Name: cmd.String("name"), Role: role},
				Source:      cmd.String("source"),
			}
			log := config.NewLoggerTo(os.Stderr, "dev", cmd.String("log-level"))
			return run(ctx, opts, os.Stdin, os.Stdout, log)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "watchclient: %v\n", err)
		os.Exit(1)
	}
}

// run connects, registers and relays stdin commands until ctx ends, the user
// quits or the hub drops the connection.
func run(ctx context.Context, opts options, in io.Reader, out io.Writer, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	defer conn.Close()

	if err := send(conn, hub.EventRegisterParticipant, opts.Participant); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	log.Info("client.registered", "id", opts.Participant.ID, "url", opts.URL)

	done := make(chan error, 1)
	go func() { done <- readEvents(conn, out) }()

	lines := make(chan string)
	go scanLines(ctx, in, lines)

	state := party.PlayerState{
		SourceReference:   opts.Source,
		PlayableReference: opts.Source,
		EventKind:         party.EventNone,
	}

	for {
		select {
		case <-ctx.Done():
			return leave(conn, done)

		case err := <-done:
			return err

		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep printing events
				lines = nil
				continue
			}
			next, ok, err := parseCommand(line, state)
			if errors.Is(err, errQuit) {
				return leave(conn, done)
			}
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
				continue
			}
			if !ok {
				continue
			}
			state = next
			if err := send(conn, hub.EventPlayerStateChanged, state); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			log.Debug("client.sent", "event_kind", state.EventKind)
		}
	}
}

// parseCommand applies one stdin line to the current state. ok is false for
// blank lines.
func parseCommand(line string, cur party.PlayerState) (party.PlayerState, bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return cur, false, nil
	}

	next := cur
	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return cur, false, errQuit
	case "source":
		if len(fields) < 2 {
			return cur, false, errors.New("usage: source <url> [playable-url]")
		}
		next.SourceReference = fields[1]
		next.PlayableReference = fields[1]
		if len(fields) > 2 {
			next.PlayableReference = fields[2]
		}
		next.EventKind = party.EventSourceChanged
	case "play":
		next.EventKind = party.EventPlay
	case "pause":
		next.EventKind = party.EventPause
	case "stop":
		next.EventKind = party.EventStop
	case "seek":
		next.EventKind = party.EventSeek
	case "mute":
		next.EventKind = party.EventMuted
	case "unmute":
		next.EventKind = party.EventUnmuted
	case "volume":
		next.EventKind = party.EventVolumeChanged
	default:
		return cur, false, fmt.Errorf("unknown command %q", fields[0])
	}

	if next.PlayableReference == "" {
		return cur, false, errors.New("no video yet, use: source <url>")
	}
	if err := next.Validate(); err != nil {
		return cur, false, err
	}
	return next, true, nil
}

// formatEvent renders one hub frame as a single line
func formatEvent(data []byte) string {
	var msg hub.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Sprintf("? %s", data)
	}

	switch msg.Event {
	case hub.EventRosterUpdated:
		var roster []party.Participant
		if err := json.Unmarshal(msg.Payload, &roster); err != nil {
			return fmt.Sprintf("? %s", data)
		}
		names := make([]string, 0, len(roster))
		for _, p := range roster {
			entry := p.ID
			if p.Name != "" {
				entry += " " + p.Name
			}
			names = append(names, fmt.Sprintf("%s [%s]", entry, p.Role))
		}
		return fmt.Sprintf("roster (%d): %s", len(roster), strings.Join(names, ", "))

	case hub.EventPlayerStateBroadcast:
		state, _, err := party.ParsePlayerState(msg.Payload)
		if err != nil {
			return fmt.Sprintf("? %s", data)
		}
		return fmt.Sprintf("state %s %s", state.EventKind, state.PlayableReference)

	default:
		return fmt.Sprintf("event %s: %s", msg.Event, msg.Payload)
	}
}

func send(conn *websocket.Conn, event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(hub.Message{Event: event, Payload: raw})
}

func readEvents(conn *websocket.Conn, out io.Writer) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		fmt.Fprintln(out, formatEvent(data))
	}
}

// scanLines feeds stdin lines to run until in is exhausted or ctx ends
func scanLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}

// leave sends a close frame and waits briefly for the hub to answer
func leave(conn *websocket.Conn, done <-chan error) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		// already gone
		return nil
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}
