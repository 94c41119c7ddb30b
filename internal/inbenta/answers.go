package inbenta

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/convobench/inbenta-relay-go/internal/model"
)

// Answer types the platform returns. Anything else is dropped during
// normalization.
const (
	AnswerTypeAnswer         = "answer"
	AnswerTypePolar          = "polarQuestion"
	AnswerTypeMultipleChoice = "multipleChoiceQuestion"
)

// Attribute names with wire-level meaning.
const (
	attrMainTitle  = "inbMainTitle"
	attrSidebubble = "SIDEBUBBLE_TEXT"
	attrRatings    = "RATINGS"

	flagNoRating = "no-rating"
)

// intent names the platform uses to signal it did not understand the
// user.
var incomprehensionIntents = map[string]bool{
	"No Results":                   true,
	"High Number of Unknown Words": true,
}

const ratingPrompt = "<p>Was this answer helpful?</p>"

// Answer is one platform response unit. The raw payload is retained so
// normalized messages can carry their source verbatim.
type Answer struct {
	Type        string            `json:"type"`
	MessageList []string          `json:"messageList"`
	Attributes  map[string]any    `json:"attributes"`
	Intent      *AnswerIntent     `json:"intent"`
	Options     []AnswerOption    `json:"options"`
	Parameters  *AnswerParameters `json:"parameters"`
	Flags       []string          `json:"flags"`

	raw json.RawMessage
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	type plain Answer
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*a = Answer(decoded)
	a.raw = append(json.RawMessage(nil), data...)
	return nil
}

// attrString returns the named attribute when it is a string, else "".
func (a *Answer) attrString(name string) string {
	if a.Attributes == nil {
		return ""
	}
	s, _ := a.Attributes[name].(string)
	return s
}

func (a *Answer) rateCode() string {
	if a.Parameters == nil || a.Parameters.Contents == nil || a.Parameters.Contents.TrackingCode == nil {
		return ""
	}
	return a.Parameters.Contents.TrackingCode.RateCode
}

func (a *Answer) hasFlag(flag string) bool {
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

type AnswerIntent struct {
	Type  string   `json:"type"`
	Score *float64 `json:"score"`
}

// AnswerOption is one choice of a polar or multiple-choice question.
// Value stays raw because the platform sends integers where the harness
// expects strings.
type AnswerOption struct {
	Label string          `json:"label"`
	Value json.RawMessage `json:"value"`
}

func (o AnswerOption) valueString() string {
	var s string
	if err := json.Unmarshal(o.Value, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(o.Value))
}

type AnswerParameters struct {
	Contents *answerContents `json:"contents"`
}

type answerContents struct {
	TrackingCode *trackingCode `json:"trackingCode"`
}

type trackingCode struct {
	RateCode string `json:"rateCode"`
}

// normalizeAnswers reshapes platform answers into harness-neutral bot
// messages, preserving arrival order. Answers of unknown type, and
// plain answers without any message text, are dropped.
func normalizeAnswers(answers []Answer, votingEnabled bool) []model.BotMessage {
	messages := make([]model.BotMessage, 0, len(answers))
	for _, a := range answers {
		if msg, ok := normalizeAnswer(a, votingEnabled); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

func normalizeAnswer(a Answer, votingEnabled bool) (model.BotMessage, bool) {
	switch a.Type {
	case AnswerTypeAnswer:
		if len(a.MessageList) == 0 {
			return model.BotMessage{}, false
		}
	case AnswerTypePolar, AnswerTypeMultipleChoice:
	default:
		log.Debug().Str("type", a.Type).Msg("dropping answer of unhandled type")
		return model.BotMessage{}, false
	}

	msg := model.BotMessage{
		SourceAnswer: a.raw,
		Text:         strings.Join(a.MessageList, " "),
		Buttons:      []model.Button{},
		Intent:       deriveIntent(a),
	}

	if sidebubble := a.attrString(attrSidebubble); sidebubble != "" {
		msg.Text += sidebubble
	}

	if code := a.rateCode(); votingEnabled && code != "" &&
		!a.hasFlag(flagNoRating) && a.attrString(attrRatings) != "FALSE" {
		msg.Text += ratingPrompt
		msg.Buttons = append(msg.Buttons,
			ratingButton("yes", "2", code),
			ratingButton("no", "1", code),
		)
	}

	if a.Type == AnswerTypePolar || a.Type == AnswerTypeMultipleChoice {
		for _, option := range a.Options {
			msg.Buttons = append(msg.Buttons, model.Button{
				Text:    option.Label,
				Payload: option.valueString(),
			})
		}
	}

	return msg, true
}

// deriveIntent maps the answer's classification fields onto the harness
// intent shape: the content main title wins over the raw intent type,
// incomprehension intents are flagged, and confidences above 1 clamp to
// 1 (the platform scores on a 0..2 scale where exact matches exceed 1,
// so dividing would misreport them).
func deriveIntent(a Answer) *model.Intent {
	var intent *model.Intent

	if mainTitle := a.attrString(attrMainTitle); mainTitle != "" {
		intent = &model.Intent{Name: mainTitle}
		if a.Intent != nil {
			intent.Confidence = a.Intent.Score
		}
	} else if a.Intent != nil {
		name := a.Intent.Type
		if name == "AIML" {
			name = "AIML_UNSPECIFIED"
		}
		intent = &model.Intent{Name: name, Confidence: a.Intent.Score}
	}

	if intent == nil {
		return nil
	}

	if incomprehensionIntents[intent.Name] {
		intent.Incomprehension = true
	}
	if intent.Confidence != nil && *intent.Confidence > 1 {
		clamped := 1.0
		intent.Confidence = &clamped
	}
	return intent
}

func ratingButton(text, value, code string) model.Button {
	payload, _ := json.Marshal(ratePayload{
		Type: ratePayloadType,
		Data: rateData{Value: value, Code: code},
	})
	return model.Button{Text: text, Payload: string(payload)}
}
