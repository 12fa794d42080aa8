package config

import (
	"errors"
	"io/fs"

	"github.com/BurntSushi/toml"
)

// EventFilter selects which event names are forwarded to the webhook.
// A nil or empty filter forwards everything.
type EventFilter struct {
	Events []string `toml:"events"`

	allowed map[string]bool
}

// LoadEventFilter reads the webhook event filter from a TOML file. A
// missing path or file yields a pass-all filter.
func LoadEventFilter(path string) (*EventFilter, error) {
	var f EventFilter
	if path == "" {
		return &f, nil
	}
	if _, err := toml.DecodeFile(path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &EventFilter{}, nil
		}
		return nil, err
	}
	if len(f.Events) > 0 {
		f.allowed = make(map[string]bool, len(f.Events))
		for _, e := range f.Events {
			f.allowed[e] = true
		}
	}
	return &f, nil
}

// Allows reports whether the given event name should be forwarded.
func (f *EventFilter) Allows(event string) bool {
	if f == nil || f.allowed == nil {
		return true
	}
	return f.allowed[event]
}
