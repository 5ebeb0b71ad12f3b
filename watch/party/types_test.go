package party

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRoleValid(t *testing.T) {
	tests := []struct {
		role     Role
		expected bool
	}{
		{RoleParticipant, true},
		{RoleAdministrator, true},
		{"admin", false},
		{"", false},
	}

	for _, test := range tests {
		if test.role.Valid() != test.expected {
			t.Errorf("Role(%q).Valid(): expected %v", test.role, test.expected)
		}
	}
}

func TestEventKinds(t *testing.T) {
	kinds := EventKinds()
	if len(kinds) != 9 {
		t.Fatalf("Expected 9 event kinds, got %d", len(kinds))
	}
	for _, k := range kinds {
		if !k.Valid() {
			t.Errorf("Event kind %q should be valid", k)
		}
	}
	if EventKind("changeVideoUrl").Valid() {
		t.Error("Unknown event kind should not be valid")
	}
}

func TestParseParticipant(t *testing.T) {
	p, err := ParseParticipant([]byte(`{"id":"u1","name":"Ana","role":"administrator"}`))
	if err != nil {
		t.Fatalf("ParseParticipant failed: %v", err)
	}
	if p.ID != "u1" || p.Name != "Ana" || p.Role != RoleAdministrator {
		t.Errorf("Unexpected participant: %+v", p)
	}
}

func TestParseParticipant_DefaultRole(t *testing.T) {
	p, err := ParseParticipant([]byte(`{"id":"u2"}`))
	if err != nil {
		t.Fatalf("ParseParticipant failed: %v", err)
	}
	if p.Role != RoleParticipant {
		t.Errorf("Expected default role %q, got %q", RoleParticipant, p.Role)
	}
	if p.Name != "" {
		t.Errorf("Expected empty name, got %q", p.Name)
	}
}

func TestParseParticipant_StringEncoded(t *testing.T) {
	p, err := ParseParticipant([]byte(`"{\"id\":\"u3\",\"name\":\"Bo\"}"`))
	if err != nil {
		t.Fatalf("ParseParticipant failed: %v", err)
	}
	if p.ID != "u3" || p.Name != "Bo" {
		t.Errorf("Unexpected participant: %+v", p)
	}
}

func TestParseParticipant_Malformed(t *testing.T) {
	payloads := map[string]string{
		"empty":        ``,
		"not json":     `hello`,
		"array":        `[{"id":"u1"}]`,
		"missing id":   `{"name":"Ana"}`,
		"unknown role": `{"id":"u1","role":"owner"}`,
		"bad string":   `"not an object"`,
		"wrong type":   `{"id":42}`,
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			_, err := ParseParticipant([]byte(payload))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestParsePlayerState(t *testing.T) {
	payload := `{"sourceReference":"https://youtu.be/abc","playableReference":"https://x/embed/abc","eventKind":"play"}`

	state, raw, err := ParsePlayerState([]byte(payload))
	if err != nil {
		t.Fatalf("ParsePlayerState failed: %v", err)
	}
	if state.EventKind != EventPlay {
		t.Errorf("Expected eventKind play, got %q", state.EventKind)
	}
	if state.PlayableReference != "https://x/embed/abc" {
		t.Errorf("Unexpected playableReference %q", state.PlayableReference)
	}
	if string(raw) != payload {
		t.Errorf("Raw payload changed:\n got %s\nwant %s", raw, payload)
	}
}

func TestParsePlayerState_PreservesUnknownFields(t *testing.T) {
	payload := `{"playableReference":"https://x/embed/abc","eventKind":"pause","playlistItems":[{"url":"a"}]}`

	_, raw, err := ParsePlayerState([]byte(payload))
	if err != nil {
		t.Fatalf("ParsePlayerState failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Relayed payload is not JSON: %v", err)
	}
	if _, ok := decoded["playlistItems"]; !ok {
		t.Error("Unknown field playlistItems was dropped")
	}
}

func TestParsePlayerState_MissingEventKind(t *testing.T) {
	state, _, err := ParsePlayerState([]byte(`{"playableReference":"https://x/embed/abc"}`))
	if err != nil {
		t.Fatalf("ParsePlayerState failed: %v", err)
	}
	if state.EventKind != EventNone {
		t.Errorf("Expected eventKind none, got %q", state.EventKind)
	}
}

func TestParsePlayerState_StringEncoded(t *testing.T) {
	state, raw, err := ParsePlayerState([]byte(`"{\"playableReference\":\"p\",\"eventKind\":\"seek\"}"`))
	if err != nil {
		t.Fatalf("ParsePlayerState failed: %v", err)
	}
	if state.EventKind != EventSeek {
		t.Errorf("Expected eventKind seek, got %q", state.EventKind)
	}
	// Relayed in the form the sender used
	if string(raw) != `"{\"playableReference\":\"p\",\"eventKind\":\"seek\"}"` {
		t.Errorf("Unexpected raw payload %s", raw)
	}
}

func TestParsePlayerState_Malformed(t *testing.T) {
	payloads := map[string]string{
		"not json":                     `{play`,
		"missing playable":             `{"eventKind":"play"}`,
		"unknown eventKind":            `{"playableReference":"p","eventKind":"rewind"}`,
		"number":                       `12`,
		"invalid utf-8":                "{\"playableReference\":\"x\xff\xfe\",\"eventKind\":\"play\"}",
		"invalid utf-8 string-encoded": "\"{\\\"playableReference\\\":\\\"x\xff\\\"}\"",
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			_, raw, err := ParsePlayerState([]byte(payload))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Expected ErrMalformedPayload, got %v", err)
			}
			if raw != nil {
				t.Errorf("Expected no raw payload on error, got %s", raw)
			}
		})
	}
}
