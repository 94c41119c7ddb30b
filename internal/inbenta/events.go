package inbenta

import (
	"encoding/json"
	"strings"

	"github.com/convobench/inbenta-relay-go/internal/model"
)

// OutboundEvent is one user turn going to the platform. The variant
// decides both the request body and the target endpoint.
type OutboundEvent interface {
	isOutboundEvent()
}

// WelcomeEvent triggers the scripted welcome response via direct call.
type WelcomeEvent struct{}

// TextEvent carries free user text.
type TextEvent struct {
	Text string
}

// OptionEvent answers a question by its option payload.
type OptionEvent struct {
	Payload string
}

// RatingEvent reports answer feedback; it targets the tracking endpoint
// and produces no bot messages.
type RatingEvent struct {
	Value string
	Code  string
}

func (WelcomeEvent) isOutboundEvent() {}
func (TextEvent) isOutboundEvent()    {}
func (OptionEvent) isOutboundEvent()  {}
func (RatingEvent) isOutboundEvent()  {}

const ratePayloadType = "rate"

type ratePayload struct {
	Type string   `json:"type"`
	Data rateData `json:"data"`
}

type rateData struct {
	Value string `json:"value"`
	Code  string `json:"code"`
}

func (e RatingEvent) payload() ratePayload {
	return ratePayload{Type: ratePayloadType, Data: rateData{Value: e.Value, Code: e.Code}}
}

// decodeRatePayload reports whether raw is a structured rating payload.
func decodeRatePayload(raw string) (RatingEvent, bool) {
	var rp ratePayload
	if err := json.Unmarshal([]byte(raw), &rp); err != nil || rp.Type != ratePayloadType {
		return RatingEvent{}, false
	}
	return RatingEvent{Value: rp.Data.Value, Code: rp.Data.Code}, true
}

// optionValue forwards structured payloads verbatim; anything else is
// sent as the plain string it arrived as.
func optionValue(payload string) any {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid([]byte(trimmed)) {
			return json.RawMessage(trimmed)
		}
	}
	return payload
}

// EventFromUserMessage translates a harness message into the outbound
// event variant it stands for. A button press wins over free text; a
// button carrying a rating payload becomes a RatingEvent, any other
// payload an OptionEvent, and a payload-less button falls back to its
// display text.
func EventFromUserMessage(msg model.UserMessage) OutboundEvent {
	if len(msg.Buttons) > 0 && (msg.Buttons[0].Payload != "" || msg.Buttons[0].Text != "") {
		button := msg.Buttons[0]
		if button.Payload != "" {
			if rating, ok := decodeRatePayload(button.Payload); ok {
				return rating
			}
			return OptionEvent{Payload: button.Payload}
		}
		return TextEvent{Text: button.Text}
	}
	return TextEvent{Text: msg.Text}
}
