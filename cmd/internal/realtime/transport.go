package realtime

import "context"

// Conn is one established channel connection.
type Conn interface {
	// Read blocks for the next text frame.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Ping(ctx context.Context) error
	// Close ends the connection with a normal closure. Safe to call twice.
	Close() error
}

// Dialer opens connections to a channel endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}
