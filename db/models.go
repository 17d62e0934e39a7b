package db

import (
	"strings"
	"time"
)

// EntityType is the directory category of an Entity.
type EntityType int

const (
	EntityMember EntityType = 1
	EntityOther  EntityType = 2
)

var entityTypeLabels = map[string]EntityType{
	"member": EntityMember,
	"other":  EntityOther,
}

// entityTypeFromLabel maps an external category label to its type,
// case-insensitively. Unknown labels report ok=false and callers apply no
// filter.
func entityTypeFromLabel(label string) (EntityType, bool) {
	t, ok := entityTypeLabels[strings.ToLower(label)]
	return t, ok
}

type Post struct {
	ID       int64     `db:"id" json:"id"`
	Title    string    `db:"title" json:"title"`
	Content  string    `db:"content" json:"content"`
	Header   string    `db:"header" json:"header,omitempty"`
	Featured bool      `db:"featured" json:"featured"`
	Created  time.Time `db:"created" json:"created"`
	Updated  time.Time `db:"updated" json:"updated"`

	EventDetails *EventDetails       `json:"eventDetails,omitempty"`
	Participants []*EventParticipant `json:"eventParticipants"`
	Attachments  []*Attachment       `json:"attachments"`
}

// EventDetails is the zero-or-one scheduling sub-record of a Post. A stored
// row always satisfies Start < End.
type EventDetails struct {
	ID     int64     `db:"id" json:"-"`
	PostID int64     `db:"postid" json:"-"`
	Start  time.Time `db:"starts" json:"start"`
	End    time.Time `db:"ends" json:"end"`
	Place  string    `db:"place" json:"place,omitempty"`
}

// EventParticipant is a named group of entities attached to a Post's event.
type EventParticipant struct {
	ID        int64   `db:"id" json:"id"`
	PostID    int64   `db:"postid" json:"-"`
	Label     string  `db:"label" json:"label"`
	EntityIDs []int64 `json:"entityIds"`
}

type Entity struct {
	ID    int64      `db:"id" json:"id"`
	Name  string     `db:"name" json:"name"`
	URL   string     `db:"url" json:"url"`
	Image string     `db:"image" json:"image,omitempty"`
	Type  EntityType `db:"type" json:"type"`
}

type Attachment struct {
	ID     int64  `db:"id" json:"id"`
	PostID int64  `db:"postid" json:"post"`
	Name   string `db:"name" json:"name"`
	File   string `db:"file" json:"file"`
}
