package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/portalcms/portal-backend/common"
)

// PostWrite is a partial desired-state document for a post. Every field is a
// pointer so that "absent" and "present" stay distinguishable: a nil scalar
// leaves the stored value untouched, nil EventDetails leaves the sub-record
// alone, and nil Participants leaves the stored collection alone — while a
// present-but-empty Participants list means "delete all".
type PostWrite struct {
	Title    *string
	Content  *string
	Header   *string
	Featured *bool

	EventDetails *EventDetailsWrite
	Participants *[]ParticipantWrite
}

type EventDetailsWrite struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
	Place *string    `json:"place"`
}

// ParticipantWrite is one desired participant entry. A nil ID marks a create;
// a set ID addresses an existing record of the post.
type ParticipantWrite struct {
	ID        *int64  `json:"id"`
	Label     string  `json:"label"`
	EntityIDs []int64 `json:"entityIds"`
}

// UnmarshalJSON decodes fields individually so that a malformed sub-document
// degrades to "absent" instead of failing the whole request. Only malformed
// top-level JSON is an error.
func (w *PostWrite) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*w = PostWrite{}
	w.Title = decodeField[string](fields, "title")
	w.Content = decodeField[string](fields, "content")
	w.Header = decodeField[string](fields, "header")
	w.Featured = decodeField[bool](fields, "featured")
	w.EventDetails = decodeField[EventDetailsWrite](fields, "eventDetails")
	w.Participants = decodeField[[]ParticipantWrite](fields, "eventParticipants")
	return nil
}

// decodeField decodes one optional field into a fresh value, yielding nil for
// missing keys, explicit nulls and values of the wrong shape alike.
func decodeField[T any](fields map[string]json.RawMessage, key string) *T {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	var v *T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// validate enforces sanitization on every short text field of the document.
// Start/end ordering is not checked here: event-details ordering failures are
// a tolerated no-op on the sub-document, not a request error.
func (w *PostWrite) validate() error {
	check := func(field, v string) error {
		if err := common.CheckSafeText(v); err != nil {
			return fmt.Errorf("%w: %s: %s", ErrValidation, field, err)
		}
		return nil
	}

	if w.Title != nil {
		if err := check("title", *w.Title); err != nil {
			return err
		}
	}
	if w.EventDetails != nil && w.EventDetails.Place != nil {
		if err := check("place", *w.EventDetails.Place); err != nil {
			return err
		}
	}
	if w.Participants != nil {
		for _, p := range *w.Participants {
			if err := check("label", p.Label); err != nil {
				return err
			}
		}
	}
	return nil
}

// valid reports whether the event-details document can become a stored row:
// both timestamps present and start strictly before end.
func (e *EventDetailsWrite) valid() bool {
	return e != nil && e.Start != nil && e.End != nil && e.Start.Before(*e.End)
}

// participantOps is the explicit operation plan for one reconciliation:
// stale deletions, identity-addressed updates, and identity-less creates.
// Deletions run first so a stale id reused by the client cannot be deleted
// and recreated in the same request.
type participantOps struct {
	deleteIDs []int64
	updates   []ParticipantWrite
	creates   []ParticipantWrite
}

// diffParticipants computes the three-way set difference between the stored
// participant ids of a post and the desired list. Entries without an id
// contribute nothing to the desired-id set.
func diffParticipants(stored []int64, desired []ParticipantWrite) participantOps {
	desiredIDs := make(map[int64]bool, len(desired))
	var ops participantOps

	for _, p := range desired {
		if p.ID != nil {
			desiredIDs[*p.ID] = true
			ops.updates = append(ops.updates, p)
		} else {
			ops.creates = append(ops.creates, p)
		}
	}
	for _, id := range stored {
		if !desiredIDs[id] {
			ops.deleteIDs = append(ops.deleteIDs, id)
		}
	}
	return ops
}
