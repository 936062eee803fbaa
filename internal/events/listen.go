package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/coder/websocket"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Listen connects to the server websocket at wsURL and republishes every
// message it receives on bus. Dropped connections are redialed with
// exponential backoff. Listen returns when ctx is cancelled.
func Listen(ctx context.Context, wsURL, token string, bus *Bus, logger *slog.Logger) error {
	backoff := minBackoff
	for {
		connected, err := listenOnce(ctx, wsURL, token, bus)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = minBackoff
		}
		logger.Warn("event stream disconnected", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func listenOnce(ctx context.Context, wsURL, token string, bus *Bus) (bool, error) {
	opts := &ws.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	conn, _, err := ws.Dial(ctx, wsURL, opts)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			var ce ws.CloseError
			if errors.As(err, &ce) && ce.Code == ws.StatusNormalClosure {
				return true, errors.New("server closed connection")
			}
			return true, fmt.Errorf("read: %w", err)
		}
		if typ != ws.MessageText {
			continue
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			continue
		}
		bus.Publish(ev)
	}
}
