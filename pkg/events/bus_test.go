package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDispatchesByName(t *testing.T) {
	bus := NewBus(nil)
	var got []string
	bus.Subscribe(NameRoleChanged, func(_ context.Context, e Event) error {
		got = append(got, e.(RoleChanged).NewRole)
		return errors.New("ignored")
	})
	bus.Subscribe(NameRoleChanged, func(_ context.Context, e Event) error {
		got = append(got, "second")
		return nil
	})
	bus.Subscribe(NameEvaluationSaved, func(context.Context, Event) error {
		t.Fatal("wrong handler")
		return nil
	})

	bus.Publish(context.Background(), RoleChanged{UserID: "u1", NewRole: "TUTOR"})
	assert.Equal(t, []string{"TUTOR", "second"}, got)
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(context.Background(), UserDeactivated{UserID: "u1"})
}
