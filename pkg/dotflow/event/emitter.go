package event

import (
	"github.com/randalmurphal/dotflow/pkg/dotflow"
)

// BusEmitter adapts a Bus to the engine's EventEmitter interface, so
// subscribers observe a run without slowing the traversal loop:
//
//	bus := event.NewBus(event.Config{})
//	defer bus.Close()
//	bus.SubscribeAll(func(ev dotflow.Event) { ... })
//
//	engine := dotflow.NewEngine(dotflow.WithEventEmitter(event.NewBusEmitter(bus)))
type BusEmitter struct {
	bus *Bus
}

// NewBusEmitter wraps a bus. A nil bus yields an emitter that
// discards events.
func NewBusEmitter(bus *Bus) *BusEmitter {
	return &BusEmitter{bus: bus}
}

// Emit implements dotflow.EventEmitter.
func (e *BusEmitter) Emit(ev dotflow.Event) {
	if e == nil || e.bus == nil {
		return
	}
	e.bus.Publish(ev)
}
