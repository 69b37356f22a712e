package repositories

import "github.com/satriahrh/scribe/domain/entities"

// EventSink receives session transitions in the order they happen
type EventSink interface {
	Emit(event entities.StatusChangeEvent)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(event entities.StatusChangeEvent)

func (f EventSinkFunc) Emit(event entities.StatusChangeEvent) {
	f(event)
}
