// Package registry provides a generic concurrency-safe registry for
// values indexed by key.
//
// The engine uses it wherever named implementations are looked up at
// run time, most prominently node handlers by type name:
//
//	handlers := registry.New[string, Handler]()
//	handlers.Register("codergen", codergenHandler)
//	handlers.Register("tool", toolHandler)
//
//	h, ok := handlers.Get("codergen")
//
// GetOrCreate covers lazy initialization, with the factory invoked at
// most once per key even under concurrent access. Range iterates a
// snapshot, so mutating the registry during iteration is safe.
package registry
