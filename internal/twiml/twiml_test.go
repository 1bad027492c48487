package twiml

import (
	"strings"
	"testing"
)

func TestConnect(t *testing.T) {
	t.Parallel()

	out, err := Connect("wss://pitchline.example.com/voice/relay", "Hello, Jordan speaking.", RelayConfig{
		TTSProvider:       "ElevenLabs",
		Voice:             "FGY2WhTYpPnrIDTdsKH5",
		Language:          "en-US",
		TextNormalization: "on",
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	s := string(out)
	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<Response><Connect><ConversationRelay `,
		`url="wss://pitchline.example.com/voice/relay"`,
		`ttsProvider="ElevenLabs"`,
		`voice="FGY2WhTYpPnrIDTdsKH5"`,
		`ttsLanguage="en-US"`,
		`welcomeGreeting="Hello, Jordan speaking."`,
		`elevenlabsTextNormalization="on"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestConnect_EscapesGreeting(t *testing.T) {
	t.Parallel()

	out, err := Connect("wss://example.com/relay", `Hi, I'm "Jordan" <& co>`, RelayConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	s := string(out)
	if strings.Contains(s, `<& co>`) {
		t.Errorf("greeting not escaped:\n%s", s)
	}
	if !strings.Contains(s, "&amp;") || !strings.Contains(s, "&lt;") {
		t.Errorf("expected XML entities in output:\n%s", s)
	}
}

func TestConnect_OmitsEmptyAttributes(t *testing.T) {
	t.Parallel()

	out, err := Connect("wss://example.com/relay", "", RelayConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	s := string(out)
	for _, attr := range []string{"ttsProvider", "voice", "ttsLanguage", "welcomeGreeting", "elevenlabsTextNormalization"} {
		if strings.Contains(s, attr) {
			t.Errorf("empty attribute %q should be omitted:\n%s", attr, s)
		}
	}
}

func TestReject(t *testing.T) {
	t.Parallel()

	out, err := Reject("The agent is unavailable right now. Please try again later.")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}

	s := string(out)
	if !strings.Contains(s, "<Say>The agent is unavailable right now. Please try again later.</Say>") {
		t.Errorf("missing Say verb:\n%s", s)
	}
	if !strings.Contains(s, "<Hangup>") {
		t.Errorf("missing Hangup verb:\n%s", s)
	}
}

func TestRelayURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		public  string
		path    string
		want    string
		wantErr bool
	}{
		{name: "https", public: "https://pitchline.example.com", path: "/voice/relay", want: "wss://pitchline.example.com/voice/relay"},
		{name: "http", public: "http://localhost:8080", path: "/voice/relay", want: "ws://localhost:8080/voice/relay"},
		{name: "trailing slash", public: "https://example.com/", path: "/voice/relay", want: "wss://example.com/voice/relay"},
		{name: "base path", public: "https://example.com/broker", path: "/voice/relay", want: "wss://example.com/broker/voice/relay"},
		{name: "bad scheme", public: "ftp://example.com", path: "/voice/relay", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := RelayURL(tc.public, tc.path)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("RelayURL: %v", err)
			}
			if got != tc.want {
				t.Errorf("RelayURL = %q, want %q", got, tc.want)
			}
		})
	}
}
