// Package realtime keeps the dashboard's live channel to the backend open.
//
// Manager follows the session: while credentials are present it holds one
// websocket connection addressed with the current access token, reconnecting
// after unintentional closes with capped exponential backoff. A connection
// that stays up for StableAfter earns a full backoff reset. Once MaxRetries
// reconnects have failed in a row the session is invalidated.
//
// Every connection lifetime carries a generation number. Events from a
// superseded generation (late dial results, reads from a closed socket,
// timers armed for it) are ignored, so an intentional teardown can never be
// mistaken for a disconnect.
package realtime
