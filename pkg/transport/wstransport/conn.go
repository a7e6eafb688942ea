package wstransport

import (
	realsync "sync"
	"time"

	sync "github.com/bacalhau-project/golang-mutex-tracer"
	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// conn is one websocket to one test server. Writes are serialized; reads
// happen only on the router's receive goroutine for this conn.
type conn struct {
	key     string
	ws      *websocket.Conn
	writeMu sync.Mutex

	closeOnce realsync.Once
	done      chan struct{}
}

func newConn(key string, ws *websocket.Conn) *conn {
	c := &conn{key: key, ws: ws, done: make(chan struct{})}
	c.writeMu.EnableTracerWithOpts(sync.Opts{
		Threshold: 10 * time.Millisecond,
		Id:        "wstransport.conn.writeMu",
	})
	return c
}

func (c *conn) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// close sends a going-away frame and closes the socket. Safe to call twice.
func (c *conn) close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "client shutting down"),
			time.Now().Add(closeGracePeriod))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
