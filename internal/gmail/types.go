package gmail

import "time"

type MessageID string
type LabelID string

// Message is the subset of a fetched mail item the triage engine inspects.
type Message struct {
	ID          MessageID
	Sender      string
	Subject     string
	Snippet     string
	Text        string
	Date        time.Time
	LabelIDs    []LabelID
	Unsubscribe string // List-Unsubscribe header value, empty when absent
}

// HasLabel reports whether the message currently carries the given label id.
func (m Message) HasLabel(id LabelID) bool {
	for _, l := range m.LabelIDs {
		if l == id {
			return true
		}
	}
	return false
}

// LabelOps is a single-message label mutation, applied as one batch.
type LabelOps struct {
	Add    []LabelID
	Remove []LabelID
}

// Empty reports whether the mutation would be a no-op.
func (o LabelOps) Empty() bool {
	return len(o.Add) == 0 && len(o.Remove) == 0
}

type ListPage struct {
	IDs           []MessageID
	NextPageToken string
}

type Query struct {
	Raw string // Gmail query string, already formed (e.g. `after:2024/03/01 -in:sent -in:trash`)
}
