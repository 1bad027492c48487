// Package relay serves the bidirectional ConversationRelay event stream: it
// receives speech transcription events from the telephony provider over a
// WebSocket, runs each caller utterance through the call session, and sends
// the persona's reply back as a text token for speech synthesis.
package relay

import "context"

// Inbound event types sent by the telephony provider.
const (
	// EventSetup opens the stream and carries the call id.
	EventSetup = "setup"

	// EventPrompt carries one transcribed caller utterance.
	EventPrompt = "prompt"

	// EventInterrupt reports the caller speaking over the persona's reply.
	EventInterrupt = "interrupt"

	// EventError reports a provider-side failure.
	EventError = "error"
)

// InboundEvent is a message received from the provider. Fields are populated
// according to Type; unknown types are tolerated and ignored.
type InboundEvent struct {
	Type string `json:"type"`

	// CallID accompanies setup events, and occasionally prompts on streams
	// that skipped setup.
	CallID string `json:"callSid,omitempty"`

	// VoicePrompt accompanies prompt events.
	VoicePrompt string `json:"voicePrompt,omitempty"`

	// Description accompanies error events.
	Description string `json:"description,omitempty"`
}

// OutboundEvent is a message sent to the provider. Replies are sent as one
// complete token with Last set; the provider synthesizes speech from it.
type OutboundEvent struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Last  bool   `json:"last"`
}

// TextEvent builds the outbound event for one complete reply.
func TextEvent(reply string) OutboundEvent {
	return OutboundEvent{Type: "text", Token: reply, Last: true}
}

// EventStream abstracts the WebSocket so the serve loop can be tested against
// scripted streams.
type EventStream interface {
	// ReadEvent blocks until the next inbound event arrives. It returns an
	// error when the stream is closed or the payload cannot be read.
	ReadEvent(ctx context.Context) (InboundEvent, error)

	// WriteEvent sends an outbound event.
	WriteEvent(ctx context.Context, ev OutboundEvent) error
}
