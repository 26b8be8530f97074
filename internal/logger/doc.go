// Package logger wraps zap with a process-wide sugared logger and
// context-scoped helpers (ToContext/FromContext/WithName/WithKV).
//
// Long-running services take a context and log through it, so every
// message carries the component name and the keys attached upstream
// (alarm id, button address, trigger).
package logger
