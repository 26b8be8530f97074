// Package preferences implements the key-value store shared with the
// external tracking task: server URL, device identifier and the
// tracking-active flag.
//
// The FileStore keeps the values as protobuf JSON (a structpb.Struct) on disk
// and reloads them when another process rewrites the file.
package preferences
