// Package main provides a CI-friendly smoke test for the caelium realtime channel.
//
// It validates:
//   - login exchange against the API host
//   - channel handshake with the access token
//   - frame decoding (log_entry is printed)
//   - refresh exchange and a second handshake with the new token
//   - rejection of a handshake with a bogus token (when -expect-reject is set)
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "github.com/Jerit-Baiju/caelium-admin/shared/contracts/realtime/v1"
)

const maxReadBytes = 64 << 10

type pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func main() {
	var (
		apiHost      = flag.String("api", "http://127.0.0.1:8000", "API host")
		origin       = flag.String("origin", "", "Origin header to send on the handshake")
		email        = flag.String("email", "", "Login email")
		loginPath    = flag.String("login-path", "/dash/login/", "Login exchange path")
		refreshPath  = flag.String("refresh-path", "/api/dash/login/refresh/", "Refresh exchange path")
		frames       = flag.Int("frames", 0, "Frames to wait for on the first connection")
		expectReject = flag.Bool("expect-reject", true, "Require a bogus token to be refused")
		timeout      = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose      = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	password := os.Getenv("CAELIUM_PASSWORD")
	if strings.TrimSpace(*email) == "" || password == "" {
		fatalf("-email and CAELIUM_PASSWORD are required")
	}
	if err := validateAPIHost(*apiHost); err != nil {
		fatalf("invalid -api: %v", err)
	}

	root := context.Background()

	var p pair
	mustPost(root, *apiHost+*loginPath, map[string]string{"email": *email, "password": password}, &p, *timeout)
	if p.Access == "" || p.Refresh == "" {
		fatalf("login: incomplete pair")
	}
	if *verbose {
		fmt.Printf("logged in: access=%d bytes\n", len(p.Access))
	}

	conn := mustDial(root, *apiHost, p.Access, *origin, *timeout)
	for i := 0; i < *frames; i++ {
		env := mustRead(root, conn, *timeout)
		if env.Type == v1.TypeLogEntry {
			var e v1.LogEntry
			if err := env.Into(&e); err != nil {
				fatalf("log_entry: %v", err)
			}
			fmt.Printf("frame %d: %s %s %s\n", i+1, e.Timestamp.Format(time.RFC3339), e.Level, e.Message)
			continue
		}
		fmt.Printf("frame %d: type=%s\n", i+1, env.Type)
	}
	closeWS(conn)

	var r pair
	mustPost(root, *apiHost+*refreshPath, map[string]string{"refresh": p.Refresh}, &r, *timeout)
	if r.Access == "" {
		fatalf("refresh: empty access token")
	}
	closeWS(mustDial(root, *apiHost, r.Access, *origin, *timeout))

	if *expectReject {
		if err := dial(root, *apiHost, "not-a-token", *origin, *timeout); err == nil {
			fatalf("bogus token: handshake accepted")
		} else if *verbose {
			fmt.Printf("bogus token refused: %v\n", err)
		}
	}

	fmt.Printf("OK: api=%s frames=%d refreshed=true\n", *apiHost, *frames)
}

func validateAPIHost(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func endpoint(apiHost, access string) string {
	u, _ := url.Parse(apiHost)
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + u.Host + strings.TrimRight(u.Path, "/") + "/ws/dash/" + url.PathEscape(access) + "/"
}

func mustPost(parent context.Context, target string, body, dst any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(body)
	if err != nil {
		fatalf("marshal: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(b))
	if err != nil {
		fatalf("request %s: %v", target, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("post %s: %v", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		fatalf("post %s: status %d", target, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		fatalf("post %s: decode: %v", target, err)
	}
}

func dial(parent context.Context, apiHost, access, origin string, stepTimeout time.Duration) error {
	conn, err := dialConn(parent, apiHost, access, origin, stepTimeout)
	if err != nil {
		return err
	}
	closeWS(conn)
	return nil
}

func dialConn(parent context.Context, apiHost, access, origin string, stepTimeout time.Duration) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, endpoint(apiHost, access), &websocket.DialOptions{HTTPHeader: h})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	conn.SetReadLimit(maxReadBytes)
	return conn, nil
}

func mustDial(parent context.Context, apiHost, access, origin string, stepTimeout time.Duration) *websocket.Conn {
	conn, err := dialConn(parent, apiHost, access, origin, stepTimeout)
	if err != nil {
		fatalf("connect: %v", err)
	}
	return conn
}

func mustRead(parent context.Context, conn *websocket.Conn, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		typ, b, err := conn.Read(ctx)
		if err != nil {
			fatalf("read: %v", err)
		}
		if typ != websocket.MessageText {
			continue
		}
		env, err := v1.Decode(b)
		if err != nil {
			fatalf("decode frame: %v", err)
		}
		return env
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
