package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"inbox/internal/ws"
)

// Nudges subscribes to the server's websocket hints and refreshes on each
// dispatch. Hints carry no state the client trusts; they only shorten the
// wait for the next poll. It reconnects with backoff until ctx is done.
func (c *Client) Nudges(ctx context.Context, wsURL, token string) error {
	target, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("parsing websocket url: %w", err)
	}
	q := target.Query()
	q.Set("token", token)
	target.RawQuery = q.Encode()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = time.Second
	expo.MaxInterval = time.Minute
	expo.MaxElapsedTime = 0

	op := func() error {
		return c.listen(ctx, target.String(), expo.Reset)
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn("websocket hints disconnected", "error", err, "retry_in", wait.String())
	}

	err = backoff.RetryNotify(op, backoff.WithContext(expo, ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) listen(ctx context.Context, target string, connected func()) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	connected()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var msg ws.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Op {
		case ws.OpDispatch:
			go c.tickConversations(ctx)
			go c.tickThread(ctx)
		case ws.OpInvalidSession:
			return fmt.Errorf("websocket session invalidated")
		}
	}
}
