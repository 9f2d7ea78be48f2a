package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/realtime"
)

// Watch follows the server's sync notifications until ctx ends or the
// connection drops, calling fn for each stored snapshot. It returns ctx.Err()
// when stopped through ctx.
func (c *Client) Watch(ctx context.Context, fn func(realtime.SyncEvent)) error {
	u, err := url.Parse(c.baseURL + "/api/events")
	if err != nil {
		return fmt.Errorf("parsing events url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 15 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return c.statusError("GET /api/events", resp)
		}
		return &core.UpstreamError{Op: "GET /api/events", Err: err}
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var ev realtime.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading events: %w", err)
		}
		switch ev.Type {
		case realtime.TypeInit:
			c.logger.Debugf("Watching %s for syncs", c.baseURL)
		case realtime.TypeSync:
			if ev.Sync != nil {
				fn(*ev.Sync)
			}
		}
	}
}
