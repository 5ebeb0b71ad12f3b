// Package party defines the data shared by everyone in a watch party.
//
// The party package implements:
//   - Participant, the identity a client claims when it registers
//   - PlayerState, the description of what the embedded player should do
//   - Parsing and validation of both from client payloads
//
// Identity:
//
// Participant IDs are generated by the client and trusted as-is. Two
// connections may claim the same ID; the hub keeps both entries.
//
// Payload Encoding:
//
// Payloads are JSON objects. For compatibility with browser clients that
// stringify before sending, a JSON string whose content is the object is
// accepted as well:
//
//	{"id": "u1", "name": "Ana"}
//	"{\"id\":\"u1\",\"name\":\"Ana\"}"
//
// PlayerState payloads are relayed verbatim, so ParsePlayerState returns the
// validated payload bytes alongside the decoded value. A stringified payload
// goes out stringified, so receivers see the same form the sender used.
// Fields the hub does not know about (a client playlist, timestamps) survive
// the relay untouched. Payloads that are not valid UTF-8 are rejected.
package party
