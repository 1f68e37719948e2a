// Package transcript consumes conversation turns published over a
// websocket by the conversation driver. This module only reads the
// feed; it never writes turns back.
package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cogents/memu-go/core"
)

// Client is a connected turn feed. Methods are not safe for concurrent
// use; one reader owns the connection.
type Client struct {
	conn   *websocket.Conn
	logger *zap.Logger
}

// Dial connects to a turn feed. The url uses the ws or wss scheme.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial transcript feed %s: %w", url, err)
	}
	logger.Info("transcript feed connected", zap.String("url", url))
	return &Client{
		conn:   conn,
		logger: logger.With(zap.String("component", "transcript")),
	}, nil
}

// Next blocks until the feed delivers the next well-formed turn. Turns
// with an unknown role are logged and skipped. A context deadline
// bounds the wait; a closed feed surfaces as an error.
func (c *Client) Next(ctx context.Context) (*core.Turn, error) {
	for {
		deadline := time.Time{}
		if d, ok := ctx.Deadline(); ok {
			deadline = d
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}

		var turn core.Turn
		if err := c.conn.ReadJSON(&turn); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("transcript feed closed: %w", err)
			}
			return nil, fmt.Errorf("read turn: %w", err)
		}
		if !core.ValidRole(turn.Role) {
			c.logger.Warn("skipping turn with unknown role", zap.String("role", turn.Role))
			continue
		}
		return &turn, nil
	}
}

// Collect reads turns until the feed closes, the context expires, or
// max turns arrive. A feed that closes after delivering at least one
// turn is a normal end, not an error.
func (c *Client) Collect(ctx context.Context, max int) ([]core.Turn, error) {
	var turns []core.Turn
	for max <= 0 || len(turns) < max {
		turn, err := c.Next(ctx)
		if err != nil {
			if len(turns) > 0 {
				c.logger.Debug("feed ended", zap.Int("turns", len(turns)), zap.Error(err))
				return turns, nil
			}
			return nil, err
		}
		turns = append(turns, *turn)
	}
	return turns, nil
}

// Close shuts the connection down, sending a close frame first so the
// publisher can distinguish a clean departure from a dropped peer.
func (c *Client) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	deadline := time.Now().Add(time.Second)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		c.logger.Debug("close frame not delivered", zap.Error(err))
	}
	return c.conn.Close()
}
