package transcript

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cogents/memu-go/core"
)

// feedServer publishes the given payloads over one websocket session,
// then closes cleanly.
func feedServer(t *testing.T, payloads []interface{}) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, p := range payloads {
			if err := conn.WriteJSON(p); err != nil {
				return
			}
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		// Wait for the peer's close frame before tearing down.
		_, _, _ = conn.ReadMessage()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNextDeliversTurnsInOrder(t *testing.T) {
	url := feedServer(t, []interface{}{
		core.Turn{Role: core.RoleUser, Content: "hello"},
		core.Turn{Role: core.RoleAssistant, Content: "hi there"},
	})

	client, err := Dial(context.Background(), url, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	turn, err := client.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, core.RoleUser, turn.Role)
	require.Equal(t, "hello", turn.Content)

	turn, err = client.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, core.RoleAssistant, turn.Role)
}

func TestNextSkipsUnknownRoles(t *testing.T) {
	url := feedServer(t, []interface{}{
		map[string]string{"role": "narrator", "content": "ignored"},
		core.Turn{Role: core.RoleUser, Content: "kept"},
	})

	client, err := Dial(context.Background(), url, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	turn, err := client.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "kept", turn.Content)
}

func TestCollectStopsAtCloseOrMax(t *testing.T) {
	payloads := []interface{}{
		core.Turn{Role: core.RoleUser, Content: "one"},
		core.Turn{Role: core.RoleAssistant, Content: "two"},
		core.Turn{Role: core.RoleUser, Content: "three"},
	}

	client, err := Dial(context.Background(), feedServer(t, payloads), zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	turns, err := client.Collect(ctx, 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "one", turns[0].Content)

	// A fresh session drained to close returns everything.
	client2, err := Dial(context.Background(), feedServer(t, payloads), zap.NewNop())
	require.NoError(t, err)
	defer client2.Close()

	turns, err = client2.Collect(ctx, 0)
	require.NoError(t, err)
	require.Len(t, turns, 3)
}

func TestNextHonorsDeadline(t *testing.T) {
	// A feed that never publishes anything.
	url := feedServer(t, nil)

	client, err := Dial(context.Background(), url, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = client.Next(ctx)
	require.Error(t, err)
}
