package model

import "encoding/json"

// Button is one tappable option attached to a bot message. Payload is
// always a string on this surface; structured payloads are JSON-encoded.
type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// Intent is the NLU classification attached to a bot message.
// Confidence is nil when the platform returned no score.
type Intent struct {
	Name            string   `json:"name"`
	Confidence      *float64 `json:"confidence"`
	Incomprehension bool     `json:"incomprehension,omitempty"`
}

// BotMessage is the harness-neutral shape of one platform answer.
type BotMessage struct {
	SourceAnswer json.RawMessage `json:"sourceAnswer"`
	Text         string          `json:"text"`
	Buttons      []Button        `json:"buttons"`
	Intent       *Intent         `json:"intent,omitempty"`
}

// UserMessage is one harness turn going to the platform. A button press
// arrives as a single button carrying either a payload or display text.
type UserMessage struct {
	Text    string   `json:"messageText"`
	Buttons []Button `json:"buttons,omitempty"`
}
