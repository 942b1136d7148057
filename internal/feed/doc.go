// Package feed fans device state out to live observers.
//
// A Registry tracks which sessions watch which device, with lock contention
// scoped per device. Opening a Session queues the device's current snapshot
// ahead of any live update, so an observer always sees a consistent starting
// point before deltas. Delivery is a buffered channel per session; a slow
// observer has events skipped rather than stalling the broadcast path or its
// peers, and only the owning session ever removes its handle.
package feed
