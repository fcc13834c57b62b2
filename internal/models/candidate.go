package models

import "time"

// Candidate is the recognition service's reading of an uploaded label. It is
// never persisted; a user accepts it into a create or a quantity merge.
type Candidate struct {
	WineFields
	MediaType              string   `json:"media_type,omitempty"`
	NeedsClarification     bool     `json:"needs_clarification"`
	ClarificationQuestions []string `json:"clarification_questions"`
	IsDuplicate            bool     `json:"is_duplicate"`
	ExistingWine           *Wine    `json:"existing_wine,omitempty"`
	Error                  string   `json:"error,omitempty"`
}

// ErrorCandidate wraps a failure message in the candidate shape.
func ErrorCandidate(msg string) *Candidate {
	return &Candidate{WineFields: NewWineFields(), Error: msg, ClarificationQuestions: []string{}}
}

// Failed reports whether the service could not produce a usable reading.
func (c *Candidate) Failed() bool {
	return c.Error != ""
}

// AwaitsClarification reports whether the owner has to answer a question
// before the reading can be committed or matched against the collection.
func (c *Candidate) AwaitsClarification() bool {
	return len(c.ClarificationQuestions) > 0
}

// Identification is the minimal reading used to find a bottle being drunk.
type Identification struct {
	Name     string `json:"name"`
	Producer string `json:"producer"`
	Vintage  *int   `json:"vintage"`
	Error    string `json:"error,omitempty"`
}

type MatchLevel string

const (
	MatchPerfect    MatchLevel = "perfect"
	MatchGood       MatchLevel = "good"
	MatchAcceptable MatchLevel = "acceptable"
)

// Known reports whether l is one of the levels the UI knows how to render.
func (l MatchLevel) Known() bool {
	switch l {
	case MatchPerfect, MatchGood, MatchAcceptable:
		return true
	}
	return false
}

type PairingSuggestion struct {
	WineID     int64      `json:"wine_id"`
	WineName   string     `json:"wine_name"`
	Vintage    *int       `json:"vintage,omitempty"`
	MatchLevel MatchLevel `json:"match_level"`
	Why        string     `json:"why"`
}

type PairingResult struct {
	Suggestions []PairingSuggestion `json:"suggestions"`
	Tip         string              `json:"tip,omitempty"`
	Error       string              `json:"error,omitempty"`
}

type WineAction string

const (
	ActionCreated  WineAction = "created"
	ActionUpdated  WineAction = "updated"
	ActionQuantity WineAction = "quantity"
	ActionDrunk    WineAction = "drunk"
	ActionDeleted  WineAction = "deleted"
)

// WineEvent announces a committed change to the collection.
type WineEvent struct {
	Action WineAction `json:"action"`
	WineID int64      `json:"wine_id"`
	Wine   *Wine      `json:"wine,omitempty"`
	At     time.Time  `json:"at"`
}
