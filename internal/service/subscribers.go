package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/pkg/changefeed"
	"github.com/noah-isme/tutorhub-api/pkg/events"
)

type cacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type sessionRevoker interface {
	RevokeSessions(ctx context.Context, userID string) error
}

// SubscriberDeps are the reactions hung off the application event bus. Nil members are skipped.
type SubscriberDeps struct {
	Feed      changePublisher
	Analytics cacheInvalidator
	Sessions  sessionRevoker
	Logger    *zap.Logger
}

// RegisterSubscribers wires the change feed, analytics cache and token revocation to bus.
func RegisterSubscribers(bus *events.Bus, deps SubscriberDeps) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publish := func(ctx context.Context, table, id, op string, audience ...string) error {
		if deps.Feed == nil {
			return nil
		}
		return deps.Feed.Publish(ctx, changefeed.Change{Table: table, ID: id, Op: op, Audience: audience})
	}
	invalidate := func(ctx context.Context) error {
		if deps.Analytics == nil {
			return nil
		}
		return deps.Analytics.Invalidate(ctx)
	}

	bus.Subscribe(events.NameAppointmentChanged, func(ctx context.Context, e events.Event) error {
		ev := e.(events.AppointmentChanged)
		op := changefeed.OpUpdate
		switch {
		case ev.Deleted:
			op = changefeed.OpDelete
		case ev.From == "":
			op = changefeed.OpInsert
		}
		return publish(ctx, "appointments", ev.AppointmentID, op, ev.TutorID, ev.TuteeID)
	})
	bus.Subscribe(events.NameAppointmentChanged, func(ctx context.Context, _ events.Event) error {
		return invalidate(ctx)
	})

	bus.Subscribe(events.NameEvaluationSaved, func(ctx context.Context, e events.Event) error {
		ev := e.(events.EvaluationSaved)
		return publish(ctx, "evaluations", ev.AppointmentID, changefeed.OpUpdate, ev.TutorID, ev.TuteeID)
	})
	bus.Subscribe(events.NameEvaluationSaved, func(ctx context.Context, _ events.Event) error {
		return invalidate(ctx)
	})

	bus.Subscribe(events.NameContentChanged, func(ctx context.Context, e events.Event) error {
		ev := e.(events.ContentChanged)
		return publish(ctx, ev.Table, ev.ID, ev.Op)
	})

	bus.Subscribe(events.NameRoleChanged, func(ctx context.Context, e events.Event) error {
		ev := e.(events.RoleChanged)
		logger.Info("role changed", zap.String("user_id", ev.UserID), zap.String("from", ev.OldRole), zap.String("to", ev.NewRole))
		if deps.Sessions != nil {
			if err := deps.Sessions.RevokeSessions(ctx, ev.UserID); err != nil {
				return err
			}
		}
		return publish(ctx, "users", ev.UserID, changefeed.OpUpdate, ev.UserID)
	})

	bus.Subscribe(events.NameUserDeactivated, func(ctx context.Context, e events.Event) error {
		ev := e.(events.UserDeactivated)
		if deps.Sessions != nil {
			if err := deps.Sessions.RevokeSessions(ctx, ev.UserID); err != nil {
				return err
			}
		}
		return publish(ctx, "users", ev.UserID, changefeed.OpUpdate, ev.UserID)
	})
}
