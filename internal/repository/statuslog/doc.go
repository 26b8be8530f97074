// Package statuslog keeps the human-readable diagnostic messages
// ("ping succeeded", "SOS signal sent", ...) produced by the dispatcher.
//
// MemoryLog is a bounded in-process list; SQLiteLog persists the same list
// so it survives a dispatcher relaunch.
package statuslog
