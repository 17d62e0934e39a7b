package router

import (
	"time"

	"github.com/portalcms/portal-backend/db"
)

// PostSummary is the list projection: post scalars plus the single
// event-details object, one level of relation expansion only.
type PostSummary struct {
	ID           int64            `json:"id"`
	Title        string           `json:"title"`
	Header       string           `json:"header,omitempty"`
	Featured     bool             `json:"featured"`
	Created      time.Time        `json:"created"`
	Updated      time.Time        `json:"updated"`
	EventDetails *db.EventDetails `json:"eventDetails,omitempty"`
}

func toSummary(p *db.Post) *PostSummary {
	return &PostSummary{
		ID:           p.ID,
		Title:        p.Title,
		Header:       p.Header,
		Featured:     p.Featured,
		Created:      p.Created,
		Updated:      p.Updated,
		EventDetails: p.EventDetails,
	}
}

func toSummaries(posts []*db.Post) []*PostSummary {
	summaries := make([]*PostSummary, 0, len(posts))
	for _, p := range posts {
		summaries = append(summaries, toSummary(p))
	}
	return summaries
}
