package model

import "time"

// UtteranceSet is the local, corpus-side representation of one intent's
// training phrases. Name is unique within a corpus. ExternalID links the
// set to the remote content item it was imported from; it is nil for
// sets authored locally.
type UtteranceSet struct {
	Name       string    `json:"name"`
	ExternalID *int64    `json:"externalId,omitempty"`
	Utterances []string  `json:"utterances"`
	UpdatedAt  time.Time `json:"updatedAt,omitzero"`
}

// Convo is a conversation scaffold asserting that an opening utterance
// resolves to a specific intent.
type Convo struct {
	Name  string      `json:"name"`
	Steps []ConvoStep `json:"steps"`
}

type ConvoStep struct {
	Sender    string     `json:"sender"`
	Text      string     `json:"text,omitempty"`
	Asserters []Asserter `json:"asserters,omitempty"`
}

type Asserter struct {
	Name string   `json:"name"`
	Args []string `json:"args"`
}
