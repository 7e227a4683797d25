// Package chat connects a platform's live event stream to the capture manager.
//
// Bridge.Run is the single dispatch loop: chat messages are appended to their channel's
// session in arrival order, and commands (record, stop, say) each run on their own goroutine
// so a slow backfill or finalization never holds up ingestion.
//
// Commands are gated by a role allow-list (Permission). Direct messages are always denied
// since they carry no guild roles.
package chat
