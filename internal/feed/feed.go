// Package feed streams merged transcript segments to websocket clients
// as JSON, one message per segment. It is a read-only surface for UIs
// and note-taking integrations; slow clients are disconnected rather
// than allowed to stall the broadcast.
package feed

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gmarchesi/verbatim/internal/events"
)

// Segment is the wire representation of one transcript segment.
type Segment struct {
	Speaker      string    `json:"speaker"`
	Text         string    `json:"text"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	ProcessingMs int64     `json:"processingMs"`
	Final        bool      `json:"final"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local-only feed; the listen address is the access control.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub accepts websocket clients and broadcasts segments to all of them.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan Segment

	server *http.Server
	wg     sync.WaitGroup
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan Segment)}
}

// Serve listens on addr until the context is cancelled.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", h.handleFeed)

	h.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h.server.Shutdown(shutdownCtx)
	}()

	log.Printf("Feed: listening on ws://%s/feed", addr)
	err := h.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (h *Hub) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Feed: upgrade failed: %v", err)
		return
	}

	ch := make(chan Segment, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("Feed: client connected (%d total)", count)

	h.wg.Add(1)
	go h.writeLoop(conn, ch)

	// Reads are discarded; the feed is one-way. The read loop exists to
	// notice the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(conn)
}

func (h *Hub) writeLoop(conn *websocket.Conn, ch chan Segment) {
	defer h.wg.Done()
	for seg := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(seg); err != nil {
			h.drop(conn)
			return
		}
	}
	conn.Close()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	ch, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
	if ok {
		conn.Close()
		log.Printf("Feed: client disconnected")
	}
}

// Broadcast fans a segment out to every connected client. A client with
// a full send buffer is dropped so one stuck reader cannot stall the
// transcript stream.
func (h *Hub) Broadcast(seg events.TranscriptionSegment) {
	msg := Segment{
		Speaker:      seg.Speaker,
		Text:         seg.Text,
		Start:        seg.Start,
		End:          seg.End,
		ProcessingMs: seg.ProcessingTime.Milliseconds(),
		Final:        seg.Final,
	}

	h.mu.Lock()
	var stuck []*websocket.Conn
	for conn, ch := range h.clients {
		select {
		case ch <- msg:
		default:
			stuck = append(stuck, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range stuck {
		log.Printf("Feed: dropping slow client")
		h.drop(conn)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and waits for writers to finish.
func (h *Hub) Close() {
	h.mu.Lock()
	for conn, ch := range h.clients {
		delete(h.clients, conn)
		close(ch)
		conn.Close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}
