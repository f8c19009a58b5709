package domain

import "time"

// UnknownAuthor is reported when no author strategy matches.
const UnknownAuthor = "Unknown Author"

// Post is the canonical record emitted for every newly discovered timeline entry.
type Post struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Author    string   `json:"author"`
	Timestamp int64    `json:"timestamp"`
	Links     []string `json:"links,omitempty"`
}

// Time converts the millisecond timestamp into a time.Time.
func (p Post) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// ReferenceKind names the identity strategy that produced a Reference.
type ReferenceKind string

const (
	RefNone      ReferenceKind = ""
	RefStatus    ReferenceKind = "status"
	RefAttribute ReferenceKind = "attribute"
	RefComposite ReferenceKind = "composite"
)

// Reference is the id-relevant value pulled from a candidate node.
type Reference struct {
	Kind  ReferenceKind
	Value string
}

// Durable reports whether the reference survives re-renders of the same post.
func (r Reference) Durable() bool {
	return r.Kind != RefNone && r.Value != ""
}

// Fields holds everything the extractor could pull out of one candidate node.
type Fields struct {
	Ref            Reference
	Text           string
	Author         string
	Timestamp      int64
	TimestampKnown bool
	Links          []string
}

// Post builds the emitted record once an identifier has been assigned.
func (f Fields) Post(id string) Post {
	return Post{
		ID:        id,
		Text:      f.Text,
		Author:    f.Author,
		Timestamp: f.Timestamp,
		Links:     f.Links,
	}
}

// SentimentBreakdown holds percentage shares that add up to roughly 100.
type SentimentBreakdown struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// SentimentReport is the answer of an external or local sentiment analyzer.
type SentimentReport struct {
	Sentiment  string             `json:"sentiment"`
	Breakdown  SentimentBreakdown `json:"breakdown"`
	Insights   string             `json:"insights"`
	Topics     []string           `json:"topics"`
	Context    string             `json:"context"`
	Provider   string             `json:"provider"`
	PostCount  int                `json:"postCount"`
	AnalyzedAt time.Time          `json:"analyzedAt"`
}
