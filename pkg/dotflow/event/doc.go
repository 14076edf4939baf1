/*
Package event fans engine lifecycle events out to decoupled consumers.

The engine emits events synchronously from its traversal loop, so its
own EventEmitter implementations must be fast. This package supplies
the escape hatch for everything that isn't: a Bus whose Publish never
blocks, delivering to per-subscription buffered channels drained by
dedicated goroutines. A consumer that falls behind overflows only its
own buffer, where the oldest event is evicted (observable via the
OnDrop hook) to make room for the newest.

Wire a bus to an engine with BusEmitter:

	bus := event.NewBus(event.Config{BufferSize: 64})
	defer bus.Close()

	bus.Subscribe([]dotflow.EventType{dotflow.EventStageFailed}, func(ev dotflow.Event) {
	    log.Printf("stage %s failed: %v", ev.NodeID, ev.Data["failure_reason"])
	})

	engine := dotflow.NewEngine(
	    dotflow.WithEventEmitter(event.NewBusEmitter(bus)),
	)
*/
package event
