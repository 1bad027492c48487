// Package twiml builds the TwiML documents returned to the telephony
// provider's webhooks. Only the two responses the broker needs are covered:
// connecting a call to the ConversationRelay stream, and a spoken error
// followed by hangup.
package twiml

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
)

// RelayConfig is the voice configuration baked into the ConversationRelay
// connect verb.
type RelayConfig struct {
	// TTSProvider selects the speech synthesis vendor (e.g. "ElevenLabs").
	TTSProvider string

	// Voice is the vendor-specific voice id.
	Voice string

	// Language is the BCP-47 TTS language tag.
	Language string

	// TextNormalization toggles ElevenLabs text normalization ("on"/"off").
	// Empty omits the attribute.
	TextNormalization string
}

// response is the TwiML document root.
type response struct {
	XMLName xml.Name  `xml:"Response"`
	Connect *connect  `xml:"Connect,omitempty"`
	Say     string    `xml:"Say,omitempty"`
	Hangup  *struct{} `xml:"Hangup,omitempty"`
}

type connect struct {
	Relay relay `xml:"ConversationRelay"`
}

type relay struct {
	URL               string `xml:"url,attr"`
	TTSProvider       string `xml:"ttsProvider,attr,omitempty"`
	Voice             string `xml:"voice,attr,omitempty"`
	TTSLanguage       string `xml:"ttsLanguage,attr,omitempty"`
	WelcomeGreeting   string `xml:"welcomeGreeting,attr,omitempty"`
	TextNormalization string `xml:"elevenlabsTextNormalization,attr,omitempty"`
}

// Connect renders the TwiML that hands the call to the relay WebSocket at
// wsURL, with greeting spoken as soon as the stream is up.
func Connect(wsURL, greeting string, cfg RelayConfig) ([]byte, error) {
	doc := response{
		Connect: &connect{
			Relay: relay{
				URL:               wsURL,
				TTSProvider:       cfg.TTSProvider,
				Voice:             cfg.Voice,
				TTSLanguage:       cfg.Language,
				WelcomeGreeting:   greeting,
				TextNormalization: cfg.TextNormalization,
			},
		},
	}
	return render(doc)
}

// Reject renders the TwiML spoken when a call cannot be serviced: say the
// message, then hang up.
func Reject(message string) ([]byte, error) {
	return render(response{
		Say:    message,
		Hangup: &struct{}{},
	})
}

// RelayURL derives the WebSocket endpoint for the relay stream from the
// service's public base URL: https becomes wss, http becomes ws, and path is
// appended.
func RelayURL(publicURL, path string) (string, error) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return "", fmt.Errorf("twiml: parse public url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("twiml: public url scheme %q not http or https", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String(), nil
}

func render(doc response) ([]byte, error) {
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("twiml: marshal: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
