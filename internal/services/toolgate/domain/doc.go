// Package domain implements the session-gated tool protocol.
//
// The package owns the static tool catalogue, the pure gate that decides
// which tools a session may see and call, and the per-session dispatcher that
// performs the single state transition the service supports: unlocking the
// gated tools. Session state itself lives only in the storage layer; a
// dispatcher re-reads it on every request and never assumes it is the only
// writer.
package domain
