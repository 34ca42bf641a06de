package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// WSDialer dials the backend with coder/websocket.
type WSDialer struct {
	// HTTPClient is used for the handshake. Nil means http.DefaultClient.
	HTTPClient *http.Client
	// Origin, when set, is sent on the handshake like a browser would.
	Origin string
	// ReadLimit caps a single frame. Zero means 64 KiB.
	ReadLimit int64
}

// Dial performs the websocket handshake. ctx bounds the handshake only.
func (d WSDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	opts := &websocket.DialOptions{HTTPClient: d.HTTPClient}
	if o := strings.TrimSpace(d.Origin); o != "" {
		opts.HTTPHeader = http.Header{"Origin": []string{o}}
	}

	c, resp, err := websocket.Dial(ctx, endpoint, opts)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		err = redactDialError(err, endpoint)
		if resp != nil {
			return nil, fmt.Errorf("channel dial: handshake status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("channel dial: %w", err)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = maxFrameBytes
	}
	c.SetReadLimit(limit)
	return &wsConn{c: c}, nil
}

// DialError is a handshake failure whose text has the access token removed.
// The endpoint carries the token in its path and the websocket library
// quotes the request URL in its errors.
type DialError struct {
	msg string
	err error
}

func (e *DialError) Error() string { return e.msg }

// Unwrap exposes only context cancellation and deadline causes; the wrapped
// library error still holds the raw URL.
func (e *DialError) Unwrap() error {
	switch {
	case errors.Is(e.err, context.Canceled):
		return context.Canceled
	case errors.Is(e.err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	default:
		return nil
	}
}

const redacted = "<redacted>"

func redactDialError(err error, endpoint string) error {
	msg := err.Error()
	for _, secret := range endpointSecrets(endpoint) {
		msg = strings.ReplaceAll(msg, secret, redacted)
	}
	return &DialError{msg: msg, err: err}
}

// endpointSecrets returns the token path segment in escaped and unescaped form.
func endpointSecrets(endpoint string) []string {
	_, rest, ok := strings.Cut(endpoint, "/ws/dash/")
	if !ok {
		return nil
	}
	seg := strings.TrimSuffix(rest, "/")
	if seg == "" {
		return nil
	}
	out := []string{seg}
	if raw, err := url.PathUnescape(seg); err == nil && raw != seg && raw != "" {
		out = append(out, raw)
	}
	return out
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := w.c.Read(ctx)
		if err != nil {
			return nil, classifyReadErr(err)
		}
		// Binary frames are not part of the contract.
		if typ != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Ping(ctx context.Context) error {
	return w.c.Ping(ctx)
}

func (w *wsConn) Close() error {
	err := w.c.Close(websocket.StatusNormalClosure, "bye")
	if err == nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return nil
	}
	return err
}

// ReadErrorKind classifies why a connection stopped reading.
type ReadErrorKind string

const (
	ReadErrorClosedByPeer ReadErrorKind = "closed_by_peer"
	ReadErrorEOF          ReadErrorKind = "eof"
	ReadErrorCanceled     ReadErrorKind = "canceled"
	ReadErrorTooLarge     ReadErrorKind = "too_large"
	ReadErrorOther        ReadErrorKind = "other"
)

// ReadError wraps a terminal read failure.
type ReadError struct {
	Kind       ReadErrorKind
	CloseCode  websocket.StatusCode
	CloseText  string
	Underlying error
}

func (e *ReadError) Error() string {
	if e.Kind == ReadErrorClosedByPeer {
		return fmt.Sprintf("channel read: %s (code=%d reason=%q)", e.Kind, e.CloseCode, e.CloseText)
	}
	return fmt.Sprintf("channel read: %s: %v", e.Kind, e.Underlying)
}

func (e *ReadError) Unwrap() error { return e.Underlying }

func classifyReadErr(err error) error {
	if err == nil {
		return nil
	}
	re := &ReadError{Kind: ReadErrorOther, Underlying: err}

	var ce websocket.CloseError
	switch {
	case errors.As(err, &ce):
		re.Kind = ReadErrorClosedByPeer
		re.CloseCode = ce.Code
		re.CloseText = ce.Reason
		if ce.Code == websocket.StatusMessageTooBig {
			re.Kind = ReadErrorTooLarge
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		re.Kind = ReadErrorCanceled
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		re.Kind = ReadErrorEOF
	}
	return re
}
