package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/auth/session"
	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/livelogs"
	v1 "github.com/Jerit-Baiju/caelium-admin/shared/contracts/realtime/v1"
)

// LogsOptions controls `caelium logs`.
type LogsOptions struct {
	Capacity int
	Location *time.Location
}

// Logs streams live log entries from the channel to w until ctx is done or
// the session ends. Connectivity flips are written as their own lines.
func (a *App) Logs(ctx context.Context, w io.Writer, opts LogsOptions) error {
	ended, unwatch, err := a.watchSessionEnd()
	if err != nil {
		return err
	}
	defer unwatch()

	tail := livelogs.NewTail(opts.Capacity, a.log.With("component", "livelogs"))
	detach := tail.Attach(a.channel)
	defer detach()

	var mu sync.Mutex
	emit := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintln(w, s)
	}

	unfollow := tail.Follow(func(e v1.LogEntry) {
		emit(livelogs.Format(e, opts.Location))
	})
	defer unfollow()

	unstatus := a.channel.OnStatus(func(connected bool) {
		if connected {
			emit("-- connected")
			return
		}
		emit("-- disconnected")
	})
	defer unstatus()

	a.StartChannel()

	select {
	case <-ctx.Done():
		return nil
	case <-ended:
		return session.ErrNotAuthenticated
	}
}

// watchSessionEnd returns a channel closed once the session stops being
// authenticated. The subscription is taken before the state is checked so a
// logout between the two cannot be missed.
func (a *App) watchSessionEnd() (<-chan struct{}, func(), error) {
	ended := make(chan struct{})
	var once sync.Once
	unsub := a.session.Subscribe(func(s session.State) {
		if !s.Authenticated {
			once.Do(func() { close(ended) })
		}
	})
	if _, err := a.RequireSession(); err != nil {
		unsub()
		return nil, nil, err
	}
	return ended, unsub, nil
}
