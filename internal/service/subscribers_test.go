package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tutorhub-api/pkg/changefeed"
	"github.com/noah-isme/tutorhub-api/pkg/events"
)

type recordingFeed struct {
	changes []changefeed.Change
}

func (f *recordingFeed) Publish(_ context.Context, c changefeed.Change) error {
	f.changes = append(f.changes, c)
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

type recordingRevoker struct{ users []string }

func (r *recordingRevoker) RevokeSessions(_ context.Context, userID string) error {
	r.users = append(r.users, userID)
	return nil
}

func TestRegisterSubscribersFansOut(t *testing.T) {
	bus := events.NewBus(nil)
	feed := &recordingFeed{}
	cache := &countingInvalidator{}
	revoker := &recordingRevoker{}
	RegisterSubscribers(bus, SubscriberDeps{Feed: feed, Analytics: cache, Sessions: revoker})
	ctx := context.Background()

	bus.Publish(ctx, events.AppointmentChanged{AppointmentID: "a1", TutorID: "t1", TuteeID: "s1", To: "pending"})
	bus.Publish(ctx, events.AppointmentChanged{AppointmentID: "a1", TutorID: "t1", TuteeID: "s1", From: "pending", To: "confirmed"})
	bus.Publish(ctx, events.AppointmentChanged{AppointmentID: "a1", TutorID: "t1", TuteeID: "s1", From: "pending", Deleted: true})
	bus.Publish(ctx, events.EvaluationSaved{AppointmentID: "a1", TutorID: "t1", TuteeID: "s1"})
	bus.Publish(ctx, events.ContentChanged{Table: "events", ID: "e1", Op: "insert"})
	bus.Publish(ctx, events.RoleChanged{UserID: "u1", OldRole: "TUTEE", NewRole: "TUTOR"})
	bus.Publish(ctx, events.UserDeactivated{UserID: "u2"})

	assert.Equal(t, []changefeed.Change{
		{Table: "appointments", ID: "a1", Op: changefeed.OpInsert, Audience: []string{"t1", "s1"}},
		{Table: "appointments", ID: "a1", Op: changefeed.OpUpdate, Audience: []string{"t1", "s1"}},
		{Table: "appointments", ID: "a1", Op: changefeed.OpDelete, Audience: []string{"t1", "s1"}},
		{Table: "evaluations", ID: "a1", Op: changefeed.OpUpdate, Audience: []string{"t1", "s1"}},
		{Table: "events", ID: "e1", Op: "insert"},
		{Table: "users", ID: "u1", Op: changefeed.OpUpdate, Audience: []string{"u1"}},
		{Table: "users", ID: "u2", Op: changefeed.OpUpdate, Audience: []string{"u2"}},
	}, feed.changes)
	assert.Equal(t, 4, cache.calls)
	assert.Equal(t, []string{"u1", "u2"}, revoker.users)
}

func TestRegisterSubscribersToleratesMissingDeps(t *testing.T) {
	bus := events.NewBus(nil)
	RegisterSubscribers(bus, SubscriberDeps{})
	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), events.RoleChanged{UserID: "u1"})
		bus.Publish(context.Background(), events.AppointmentChanged{AppointmentID: "a1"})
	})
}
