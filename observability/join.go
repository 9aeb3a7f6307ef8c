package observability

import (
	"context"
	"fmt"
	"strings"
)

// NoOpObserver discards all events.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}

// MultiObserver delivers each event to every member, in order.
type MultiObserver []Observer

func (m MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m {
		obs.OnEvent(ctx, event)
	}
}

// Join combines observers, dropping nil and no-op members. It returns
// NoOpObserver when nothing is left and the sole member when only one is.
func Join(observers ...Observer) Observer {
	var members MultiObserver
	for _, obs := range observers {
		switch o := obs.(type) {
		case nil, NoOpObserver:
		case MultiObserver:
			members = append(members, o...)
		default:
			members = append(members, obs)
		}
	}

	switch len(members) {
	case 0:
		return NoOpObserver{}
	case 1:
		return members[0]
	default:
		return members
	}
}

// Resolve looks up a comma-separated list of registered observer names
// ("slog,zap") and joins them.
func Resolve(names string) (Observer, error) {
	var observers []Observer
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		obs, err := GetObserver(name)
		if err != nil {
			return nil, err
		}
		observers = append(observers, obs)
	}
	if len(observers) == 0 {
		return nil, fmt.Errorf("no observer named in %q", names)
	}
	return Join(observers...), nil
}
