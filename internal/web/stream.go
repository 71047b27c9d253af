package web

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamBuffer    = 8
	streamHeartbeat = 15 * time.Second
	wsWriteTimeout  = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The renderer is usually served from another origin on the LAN.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamHandler serves updates as Server-Sent Events.
func streamHandler(b *TiltBroadcaster) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		id, ch := b.Subscribe(streamBuffer)
		defer b.Unsubscribe(id)

		hb := time.NewTicker(streamHeartbeat)
		defer hb.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-hb.C:
				if _, err := w.Write([]byte(": ping\n\n")); err != nil {
					return
				}
				flusher.Flush()
			case u, ok := <-ch:
				if !ok {
					return
				}
				bts, err := json.Marshal(u)
				if err != nil {
					continue
				}
				if _, err := w.Write([]byte("event: tilt\ndata: ")); err != nil {
					return
				}
				_, _ = w.Write(bts)
				_, _ = w.Write([]byte("\n\n"))
				flusher.Flush()
			}
		}
	})
}

// wsHandler pushes every update as a JSON text frame. Client frames are read
// only to notice when the peer goes away.
func wsHandler(b *TiltBroadcaster) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade: %v", err)
			return
		}
		defer conn.Close()

		id, ch := b.Subscribe(streamBuffer)
		defer b.Unsubscribe(id)

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-r.Context().Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteTimeout))
				return
			case <-gone:
				return
			case u, ok := <-ch:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(u); err != nil {
					return
				}
			}
		}
	})
}
