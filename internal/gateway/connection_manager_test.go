package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// joinEcho joins connections to the room they ask for and acknowledges
// with a unicast, the minimal handler the routing tests need.
type joinEcho struct {
	cm *ConnectionManager
}

func (h *joinEcho) HandleCommand(conn *Connection, msg Message) {
	if msg.Event != CmdJoin {
		return
	}
	var setID string
	if err := json.Unmarshal(msg.Data, &setID); err != nil {
		return
	}
	h.cm.Join(conn, setID)
	ack, _ := NewMessage("joined", setID)
	h.cm.Unicast(conn, ack)
}

func (h *joinEcho) HandleDisconnect(conn *Connection) {}

func startManager(t *testing.T) (*ConnectionManager, string) {
	t.Helper()

	cm := NewConnectionManager(DefaultConnectionConfig())
	cm.SetHandler(&joinEcho{cm: cm})

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)
	t.Cleanup(cancel)

	srv := httptest.NewServer(http.HandlerFunc(cm.HandleWebSocket))
	t.Cleanup(srv.Close)

	return cm, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func join(t *testing.T, conn *websocket.Conn, setID string) {
	t.Helper()
	msg, err := NewMessage(CmdJoin, setID)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))

	got := readMessage(t, conn)
	require.Equal(t, "joined", got.Event)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected no delivery")
}

func TestPublishReachesOnlyRoomMembers(t *testing.T) {
	cm, url := startManager(t)

	viewerA := dial(t, url)
	join(t, viewerA, "alpha")
	viewerB := dial(t, url)
	join(t, viewerB, "beta")

	msg, err := NewMessage(EventSlideChanged, 3)
	require.NoError(t, err)
	cm.Publish("alpha", msg)

	got := readMessage(t, viewerA)
	require.Equal(t, EventSlideChanged, got.Event)
	require.JSONEq(t, `3`, string(got.Data))

	expectSilence(t, viewerB)
}

func TestPublishesDeliverInIssueOrder(t *testing.T) {
	cm, url := startManager(t)

	viewer := dial(t, url)
	join(t, viewer, "alpha")

	for i := 0; i < 5; i++ {
		msg, err := NewMessage(EventSlideChanged, i)
		require.NoError(t, err)
		cm.Publish("alpha", msg)
	}

	for i := 0; i < 5; i++ {
		got := readMessage(t, viewer)
		var index int
		require.NoError(t, json.Unmarshal(got.Data, &index))
		require.Equal(t, i, index)
	}
}

func TestJoiningANewRoomLeavesThePreviousOne(t *testing.T) {
	cm, url := startManager(t)

	viewer := dial(t, url)
	join(t, viewer, "alpha")
	join(t, viewer, "beta")

	// Publish to the old room first: if the viewer still belonged to
	// it, this would arrive ahead of the beta event below.
	stale, err := NewMessage(EventSlideChanged, 9)
	require.NoError(t, err)
	cm.Publish("alpha", stale)

	fresh, err := NewMessage(EventTimerUpdate, nil)
	require.NoError(t, err)
	cm.Publish("beta", fresh)

	got := readMessage(t, viewer)
	require.Equal(t, EventTimerUpdate, got.Event)
	expectSilence(t, viewer)
}

func TestDeliveryToJustUnregisteredConnectionIsDropped(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())

	conn := &Connection{ID: "gone", Send: make(chan []byte, 1), manager: cm}
	cm.mu.Lock()
	cm.membership[conn] = ""
	cm.mu.Unlock()
	cm.Join(conn, "alpha")

	// The delivery loop may have snapshotted the room right before the
	// connection unregistered; sends to it must drop, not panic on the
	// closed channel.
	cm.unregister(conn)

	require.NotPanics(t, func() {
		cm.send(conn, []byte(`{}`))
		cm.deliver(outbound{setID: "alpha", data: []byte(`{}`)})
		cm.deliver(outbound{conn: conn, data: []byte(`{}`)})
	})
	require.Empty(t, conn.Send)
}

func TestDisconnectDuringBroadcastStorm(t *testing.T) {
	cm, url := startManager(t)

	conns := make([]*websocket.Conn, 8)
	for i := range conns {
		conns[i] = dial(t, url)
		join(t, conns[i], "alpha")
	}

	msg, err := NewMessage(EventTimerUpdate, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			cm.Publish("alpha", msg)
		}
	}()

	// Tear the clients down while the broadcasts are in flight.
	for _, c := range conns {
		c.Close()
	}
	<-done

	require.Eventually(t, func() bool {
		return cm.GetStats().TotalConnections == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStatsCountRoomMembership(t *testing.T) {
	cm, url := startManager(t)

	a := dial(t, url)
	join(t, a, "alpha")
	b := dial(t, url)
	join(t, b, "alpha")
	c := dial(t, url)
	join(t, c, "beta")

	stats := cm.GetStats()
	require.Equal(t, 3, stats.TotalConnections)
	require.Equal(t, 2, stats.ActiveSets)
	require.Equal(t, 2, stats.RoomSizes["alpha"])
	require.Equal(t, 1, stats.RoomSizes["beta"])
}
