package observability

import (
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/zap"
)

var (
	observers = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
	}
	mutex sync.RWMutex
)

// GetObserver returns a registered observer by name.
// Pre-registered observers: "noop", "slog" (default logger) and "zap", which
// is built on first use from zap's production config.
func GetObserver(name string) (Observer, error) {
	mutex.Lock()
	defer mutex.Unlock()

	if obs, exists := observers[name]; exists {
		return obs, nil
	}

	if name == "zap" {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, fmt.Errorf("build zap logger: %w", err)
		}
		obs := NewZapObserver(logger)
		observers[name] = obs
		return obs, nil
	}

	return nil, fmt.Errorf("unknown observer: %s", name)
}

// RegisterObserver adds or replaces a named observer in the global registry.
func RegisterObserver(name string, observer Observer) {
	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}
