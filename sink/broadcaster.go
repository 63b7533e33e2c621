package sink

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultBacklog      = 1024
)

// BroadcasterOption configures a [Broadcaster].
type BroadcasterOption func(*Broadcaster)

// WithBacklog sets how many recent lines are replayed to clients that
// connect late. Zero disables replay.
func WithBacklog(n int) BroadcasterOption {
	return func(b *Broadcaster) {
		b.backlogSize = n
	}
}

// WithWriteTimeout bounds each websocket write.
func WithWriteTimeout(d time.Duration) BroadcasterOption {
	return func(b *Broadcaster) {
		b.writeTimeout = d
	}
}

// WithBroadcasterLogger sets the logger. Defaults to [slog.Default].
func WithBroadcasterLogger(l *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		b.log = l
	}
}

// Broadcaster is a [Sink] that fans lines out to websocket clients. It is
// also the [http.Handler] clients connect through. Clients whose write fails
// are dropped. Create instances with [NewBroadcaster].
type Broadcaster struct {
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	backlogSize  int
	log          *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	backlog []string
	closed  bool
}

// NewBroadcaster creates a [Broadcaster].
func NewBroadcaster(opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		writeTimeout: defaultWriteTimeout,
		backlogSize:  defaultBacklog,
		log:          slog.Default(),
		clients:      make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// ServeHTTP upgrades the request, replays the backlog, and keeps the client
// registered until it disconnects or the broadcaster is closed.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Debug("websocket upgrade failed", slog.Any("err", err))

		return
	}

	b.mu.Lock()
	for _, line := range b.backlog {
		if err := b.write(conn, line); err != nil {
			b.mu.Unlock()
			conn.Close()

			return
		}
	}

	if b.closed {
		b.sendClose(conn)
		b.mu.Unlock()
		conn.Close()

		return
	}

	b.clients[conn] = struct{}{}
	b.mu.Unlock()

	// Reading is required to process control frames; clients are not
	// expected to send data.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.remove(conn)
}

// WriteLine implements [Sink].
func (b *Broadcaster) WriteLine(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.backlogSize > 0 {
		b.backlog = append(b.backlog, line)
		if over := len(b.backlog) - b.backlogSize; over > 0 {
			b.backlog = b.backlog[over:]
		}
	}

	for conn := range b.clients {
		if err := b.write(conn, line); err != nil {
			b.log.Debug("dropping websocket client",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.Any("err", err),
			)
			delete(b.clients, conn)
			conn.Close()
		}
	}

	return nil
}

// Len returns the number of connected clients.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.clients)
}

// Close sends a normal close frame to every client and disconnects them.
// Clients that connect afterwards receive the backlog and are closed.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for conn := range b.clients {
		b.sendClose(conn)
		delete(b.clients, conn)
		conn.Close()
	}

	return nil
}

func (b *Broadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[conn]; ok {
		delete(b.clients, conn)
		conn.Close()
	}
}

func (b *Broadcaster) write(conn *websocket.Conn, line string) error {
	if err := conn.SetWriteDeadline(time.Now().Add(b.writeTimeout)); err != nil {
		return err
	}

	return conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (b *Broadcaster) sendClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(b.writeTimeout)); err != nil {
		b.log.Debug("websocket close failed", slog.Any("err", err))
	}
}
