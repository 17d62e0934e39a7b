package db

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a real Postgres instance and are skipped unless
// TEST_POSTGRES_URL is set, e.g.
//
//	TEST_POSTGRES_URL=postgres://postgres@localhost/portal_test?sslmode=disable go test ./db/

func testDB(t *testing.T) *DB {
	t.Helper()
	addr := os.Getenv("TEST_POSTGRES_URL")
	if addr == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}
	d, err := Open(addr)
	require.NoError(t, err)
	_, err = d.sql.Exec(`TRUNCATE posts, entities, eventdetails, eventparticipants,
		eventparticipant_entities, attachments RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func seedEntity(t *testing.T, d *DB, name string, typ EntityType) int64 {
	t.Helper()
	var id int64
	err := d.sql.QueryRow(
		`INSERT INTO entities(name, url, type) VALUES ($1, $2, $3) RETURNING id`,
		name, "https://example.org/"+name, typ).Scan(&id)
	require.NoError(t, err)
	return id
}

func ptr[T any](v T) *T { return &v }

var (
	eventStart = time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)
	eventEnd   = time.Date(2024, 5, 10, 21, 0, 0, 0, time.UTC)
)

func TestCreatePost_Minimal(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	p, err := d.CreatePost(ctx, &PostWrite{Title: ptr("T"), Content: ptr("c")})
	require.NoError(t, err)

	assert.Equal(t, "T", p.Title)
	assert.Equal(t, "c", p.Content)
	assert.False(t, p.Featured)
	assert.Nil(t, p.EventDetails)
	assert.Empty(t, p.Participants)
	assert.Empty(t, p.Attachments)
	assert.False(t, p.Created.IsZero())
}

func TestCreatePost_SwallowsInvalidEventDetails(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	// end before start: the sub-document is dropped, the post still lands
	p, err := d.CreatePost(ctx, &PostWrite{
		Title:   ptr("T"),
		Content: ptr("c"),
		EventDetails: &EventDetailsWrite{
			Start: ptr(eventEnd),
			End:   ptr(eventStart),
		},
	})
	require.NoError(t, err)
	assert.Nil(t, p.EventDetails)

	stored, err := d.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.EventDetails)
}

func TestCreatePost_WithEventDetailsAndParticipants(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	e1 := seedEntity(t, d, "orchestra", EntityMember)
	e2 := seedEntity(t, d, "choir", EntityOther)

	p, err := d.CreatePost(ctx, &PostWrite{
		Title: ptr("Concert"),
		EventDetails: &EventDetailsWrite{
			Start: ptr(eventStart),
			End:   ptr(eventEnd),
			Place: ptr("Main hall"),
		},
		Participants: &[]ParticipantWrite{
			{Label: "performers", EntityIDs: []int64{e1, e2}},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, p.EventDetails)
	assert.True(t, p.EventDetails.Start.Equal(eventStart))
	assert.True(t, p.EventDetails.End.Equal(eventEnd))
	assert.Equal(t, "Main hall", p.EventDetails.Place)

	require.Len(t, p.Participants, 1)
	assert.Equal(t, "performers", p.Participants[0].Label)
	assert.ElementsMatch(t, []int64{e1, e2}, p.Participants[0].EntityIDs)
}

func TestCreatePost_UnknownEntityAbortsWholeWrite(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	_, err := d.CreatePost(ctx, &PostWrite{
		Title: ptr("T"),
		Participants: &[]ParticipantWrite{
			{Label: "ghosts", EntityIDs: []int64{9999}},
		},
	})
	require.ErrorIs(t, err, ErrNotFound)

	posts, err := d.ListPosts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, posts, "aborted create must leave nothing behind")
}

func TestCreatePost_RejectsUnsafeTitle(t *testing.T) {
	d := testDB(t)

	_, err := d.CreatePost(context.Background(), &PostWrite{Title: ptr("<b>bold</b>")})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdatePost_PartialScalars(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	p, err := d.CreatePost(ctx, &PostWrite{Title: ptr("T"), Content: ptr("c"), Featured: ptr(true)})
	require.NoError(t, err)

	updated, err := d.UpdatePost(ctx, p.ID, &PostWrite{Content: ptr("c2")})
	require.NoError(t, err)

	assert.Equal(t, "T", updated.Title, "omitted field untouched")
	assert.Equal(t, "c2", updated.Content)
	assert.True(t, updated.Featured, "omitted field untouched")
	assert.True(t, updated.Updated.After(p.Updated) || updated.Updated.Equal(p.Updated))
}

func TestUpdatePost_NotFound(t *testing.T) {
	d := testDB(t)

	_, err := d.UpdatePost(context.Background(), 12345, &PostWrite{Title: ptr("T")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePost_EventDetailsPatch(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	p, err := d.CreatePost(ctx, &PostWrite{
		Title:        ptr("T"),
		EventDetails: &EventDetailsWrite{Start: ptr(eventStart), End: ptr(eventEnd), Place: ptr("Hall A")},
	})
	require.NoError(t, err)
	require.NotNil(t, p.EventDetails)

	// patch only the place
	updated, err := d.UpdatePost(ctx, p.ID, &PostWrite{
		EventDetails: &EventDetailsWrite{Place: ptr("Hall B")},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.EventDetails)
	assert.Equal(t, "Hall B", updated.EventDetails.Place)
	assert.True(t, updated.EventDetails.Start.Equal(eventStart))

	// a patch that would break start < end leaves the row unchanged
	updated, err = d.UpdatePost(ctx, p.ID, &PostWrite{
		EventDetails: &EventDetailsWrite{End: ptr(eventStart.Add(-time.Hour))},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.EventDetails)
	assert.True(t, updated.EventDetails.End.Equal(eventEnd))
}

func TestUpdatePost_EventDetailsCreatedWhenMissing(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	p, err := d.CreatePost(ctx, &PostWrite{Title: ptr("T")})
	require.NoError(t, err)
	require.Nil(t, p.EventDetails)

	updated, err := d.UpdatePost(ctx, p.ID, &PostWrite{
		EventDetails: &EventDetailsWrite{Start: ptr(eventStart), End: ptr(eventEnd)},
	})
	require.NoError(t, err)
	require.NotNil(t, updated.EventDetails)

	// an omitted sub-document leaves the row alone
	updated, err = d.UpdatePost(ctx, p.ID, &PostWrite{Title: ptr("T2")})
	require.NoError(t, err)
	assert.NotNil(t, updated.EventDetails)
}

func TestUpdatePost_ParticipantReconciliation(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	e1 := seedEntity(t, d, "first", EntityMember)
	e2 := seedEntity(t, d, "second", EntityMember)
	e3 := seedEntity(t, d, "third", EntityOther)

	p, err := d.CreatePost(ctx, &PostWrite{
		Title: ptr("T"),
		Participants: &[]ParticipantWrite{
			{Label: "A", EntityIDs: []int64{e1}},
			{Label: "B", EntityIDs: []int64{e2}},
		},
	})
	require.NoError(t, err)
	require.Len(t, p.Participants, 2)
	idA := p.Participants[0].ID

	updated, err := d.UpdatePost(ctx, p.ID, &PostWrite{
		Participants: &[]ParticipantWrite{
			{ID: &idA, Label: "A2", EntityIDs: []int64{e3}},
			{Label: "C", EntityIDs: []int64{e1, e2}},
		},
	})
	require.NoError(t, err)

	require.Len(t, updated.Participants, 2, "B must be deleted")
	byLabel := map[string]*EventParticipant{}
	for _, part := range updated.Participants {
		byLabel[part.Label] = part
	}

	require.Contains(t, byLabel, "A2")
	assert.Equal(t, idA, byLabel["A2"].ID, "relabel keeps the record identity")
	assert.Equal(t, []int64{e3}, byLabel["A2"].EntityIDs, "entity set replaced, not merged")

	require.Contains(t, byLabel, "C")
	assert.ElementsMatch(t, []int64{e1, e2}, byLabel["C"].EntityIDs)
}

func TestUpdatePost_OmissionVsEmptyList(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	e1 := seedEntity(t, d, "kept", EntityMember)

	p, err := d.CreatePost(ctx, &PostWrite{
		Title:        ptr("T"),
		Participants: &[]ParticipantWrite{{Label: "A", EntityIDs: []int64{e1}}},
	})
	require.NoError(t, err)
	require.Len(t, p.Participants, 1)

	// absent field: collection untouched
	updated, err := d.UpdatePost(ctx, p.ID, &PostWrite{Title: ptr("T2")})
	require.NoError(t, err)
	assert.Len(t, updated.Participants, 1)

	// empty list: delete all
	updated, err = d.UpdatePost(ctx, p.ID, &PostWrite{Participants: &[]ParticipantWrite{}})
	require.NoError(t, err)
	assert.Empty(t, updated.Participants)
}

func TestUpdatePost_StaleParticipantIDSkipped(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	e1 := seedEntity(t, d, "e", EntityMember)

	p, err := d.CreatePost(ctx, &PostWrite{Title: ptr("T")})
	require.NoError(t, err)

	// unknown participant id: skipped, not an error and not a create
	updated, err := d.UpdatePost(ctx, p.ID, &PostWrite{
		Participants: &[]ParticipantWrite{
			{ID: ptr(int64(4242)), Label: "stale", EntityIDs: []int64{e1}},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, updated.Participants)
}

func TestUpdatePost_UnknownEntityAbortsAtomically(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	e1 := seedEntity(t, d, "real", EntityMember)

	p, err := d.CreatePost(ctx, &PostWrite{
		Title:        ptr("T"),
		Participants: &[]ParticipantWrite{{Label: "A", EntityIDs: []int64{e1}}},
	})
	require.NoError(t, err)

	_, err = d.UpdatePost(ctx, p.ID, &PostWrite{
		Title: ptr("changed"),
		Participants: &[]ParticipantWrite{
			{Label: "good", EntityIDs: []int64{e1}},
			{Label: "bad", EntityIDs: []int64{9999}},
		},
	})
	require.ErrorIs(t, err, ErrNotFound)

	stored, err := d.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", stored.Title, "no partial scalar change")
	require.Len(t, stored.Participants, 1, "no partial participant change")
	assert.Equal(t, "A", stored.Participants[0].Label)
}

func TestUpdatePost_IdempotentFullDocument(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	e1 := seedEntity(t, d, "e1", EntityMember)
	e2 := seedEntity(t, d, "e2", EntityOther)

	p, err := d.CreatePost(ctx, &PostWrite{Title: ptr("T")})
	require.NoError(t, err)

	doc := &PostWrite{
		Title:    ptr("Final"),
		Content:  ptr("body"),
		Featured: ptr(true),
		EventDetails: &EventDetailsWrite{
			Start: ptr(eventStart), End: ptr(eventEnd), Place: ptr("Hall"),
		},
		Participants: &[]ParticipantWrite{
			{Label: "grp", EntityIDs: []int64{e1, e2}},
		},
	}

	first, err := d.UpdatePost(ctx, p.ID, doc)
	require.NoError(t, err)
	second, err := d.UpdatePost(ctx, p.ID, doc)
	require.NoError(t, err)

	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, first.Featured, second.Featured)
	require.NotNil(t, second.EventDetails)
	assert.True(t, first.EventDetails.Start.Equal(second.EventDetails.Start))

	require.Len(t, second.Participants, 1)
	assert.Equal(t, "grp", second.Participants[0].Label)
	assert.ElementsMatch(t, first.Participants[0].EntityIDs, second.Participants[0].EntityIDs)
}

func TestDeletePost_Cascades(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	e1 := seedEntity(t, d, "e", EntityMember)

	p, err := d.CreatePost(ctx, &PostWrite{
		Title:        ptr("T"),
		EventDetails: &EventDetailsWrite{Start: ptr(eventStart), End: ptr(eventEnd)},
		Participants: &[]ParticipantWrite{{Label: "A", EntityIDs: []int64{e1}}},
	})
	require.NoError(t, err)
	_, err = d.CreateAttachment(ctx, p.ID, "agenda", "abc.pdf")
	require.NoError(t, err)

	require.NoError(t, d.DeletePost(ctx, p.ID))

	_, err = d.GetPost(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var n int
	for _, table := range []string{"eventdetails", "eventparticipants", "eventparticipant_entities", "attachments"} {
		require.NoError(t, d.sql.QueryRow(fmt.Sprintf("SELECT count(*) FROM %s", table)).Scan(&n))
		assert.Zero(t, n, table)
	}

	// the referenced entity survives, it was never owned by the post
	_, err = d.GetEntity(ctx, e1)
	assert.NoError(t, err)

	assert.ErrorIs(t, d.DeletePost(ctx, p.ID), ErrNotFound)
}

func TestListPosts_OnlyFilter(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	article, err := d.CreatePost(ctx, &PostWrite{Title: ptr("article")})
	require.NoError(t, err)
	event, err := d.CreatePost(ctx, &PostWrite{
		Title:        ptr("event"),
		EventDetails: &EventDetailsWrite{Start: ptr(eventStart), End: ptr(eventEnd)},
	})
	require.NoError(t, err)

	all, err := d.ListPosts(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, event.ID, all[0].ID, "descending id order")
	require.NotNil(t, all[0].EventDetails, "summaries expand event details")

	events, err := d.ListPosts(ctx, "events")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)

	articles, err := d.ListPosts(ctx, "posts")
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, article.ID, articles[0].ID)

	unknown, err := d.ListPosts(ctx, "bogus")
	require.NoError(t, err)
	assert.Len(t, unknown, 2, "unrecognized value applies no restriction")
}

func TestListEntities_TypeFilter(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	seedEntity(t, d, "alice", EntityMember)
	seedEntity(t, d, "bob", EntityOther)

	members, err := d.ListEntities(ctx, "MeMbEr")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].Name)

	all, err := d.ListEntities(ctx, "sponsor")
	require.NoError(t, err)
	assert.Len(t, all, 2, "unknown label returns the full set")

	assert.Equal(t, "alice", all[0].Name, "directory is ordered by name")
}

func TestAttachments_CRUDAndListFilter(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	p1, err := d.CreatePost(ctx, &PostWrite{Title: ptr("one")})
	require.NoError(t, err)
	p2, err := d.CreatePost(ctx, &PostWrite{Title: ptr("two")})
	require.NoError(t, err)

	a1, err := d.CreateAttachment(ctx, p1.ID, "agenda", "x.pdf")
	require.NoError(t, err)
	_, err = d.CreateAttachment(ctx, p2.ID, "notes", "y.pdf")
	require.NoError(t, err)

	scoped, err := d.ListAttachments(ctx, p1.ID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, a1.ID, scoped[0].ID)

	all, err := d.ListAttachments(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = d.CreateAttachment(ctx, 9999, "orphan", "z.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = d.CreateAttachment(ctx, p1.ID, "<bad>", "b.pdf")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, d.DeleteAttachment(ctx, a1.ID))
	assert.ErrorIs(t, d.DeleteAttachment(ctx, a1.ID), ErrNotFound)
	_, err = d.GetAttachment(ctx, a1.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
