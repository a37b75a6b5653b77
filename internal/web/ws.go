package web

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"speedo/internal/display"
)

// SpeedStream pushes display text updates to websocket clients. Each client
// gets the latest value on connect, then every subsequent update.
type SpeedStream struct {
	bcast    *display.Broadcaster
	upgrader websocket.Upgrader
}

func NewSpeedStream(bcast *display.Broadcaster) *SpeedStream {
	return &SpeedStream{
		bcast: bcast,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  256,
			WriteBufferSize: 256,
			// Same-host UI only; the service binds to the LAN anyway.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type speedFrame struct {
	Text string `json:"text"`
}

func (s *SpeedStream) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	id, ch := s.bcast.Subscribe(4)
	defer s.bcast.Unsubscribe(id)

	// Drain client frames so pings/closes are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case text, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(speedFrame{Text: text}); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("web: ws write: %v", err)
				}
				return
			}
		case <-ping.C:
			// Detect dead peers even when the display is idle.
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
