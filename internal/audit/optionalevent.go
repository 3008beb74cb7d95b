package audit

import (
	"iter"

	"github.com/rs/zerolog"
)

// OptionalEvent is a nested log dictionary that is only attached to its
// parent when at least one field was written to it, keeping empty sections
// out of audit entries.
type OptionalEvent struct {
	ev       *zerolog.Event
	modified bool
}

func NewOptionalEvent(e *zerolog.Event) *OptionalEvent {
	return &OptionalEvent{ev: e}
}

func (oe *OptionalEvent) event() *zerolog.Event {
	if oe.ev == nil {
		oe.ev = zerolog.Dict()
	}
	return oe.ev
}

// Set attaches the dictionary to parent under key when it holds any fields,
// reporting whether it did.
func (oe *OptionalEvent) Set(parent *zerolog.Event, key string) bool {
	if !oe.modified {
		return false
	}
	parent.Dict(key, oe.event())
	return true
}

// Str adds a string field. Empty values are skipped.
func (oe *OptionalEvent) Str(key, val string) *OptionalEvent {
	if val == "" {
		return oe
	}
	oe.event().Str(key, val)
	oe.modified = true
	return oe
}

// Arr adds an array of objects. A nil sequence is skipped; an empty one is
// written as an empty array.
func (oe *OptionalEvent) Arr(key string, val iter.Seq[zerolog.LogObjectMarshaler]) *OptionalEvent {
	if val == nil {
		return oe
	}

	arr := zerolog.Arr()
	for v := range val {
		arr.Object(v)
	}

	oe.event().Array(key, arr)
	oe.modified = true

	return oe
}

func arr[T zerolog.LogObjectMarshaler](vals []T) iter.Seq[zerolog.LogObjectMarshaler] {
	if vals == nil {
		return nil
	}

	return func(yield func(zerolog.LogObjectMarshaler) bool) {
		for _, v := range vals {
			if !yield(v) {
				return
			}
		}
	}
}
