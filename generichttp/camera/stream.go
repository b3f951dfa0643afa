package camera

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	cam "github.com/nasa-jpl/mvcam/camera"
)

const (
	// Time allowed to write message to the client
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second

	// events buffered per client before further events are dropped for it
	clientBuffer = 16
)

// FrameEvent is what /stream sends for every frame
type FrameEvent struct {
	FrameNum  uint64    `json:"frameNum"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	PixelType string    `json:"pixelType"`
	FrameLen  int       `json:"frameLen"`
	Host      time.Time `json:"host"`
}

func eventOf(f cam.Frame) FrameEvent {
	return FrameEvent{
		FrameNum:  f.FrameNum,
		Width:     f.Width,
		Height:    f.Height,
		PixelType: f.PixelType.String(),
		FrameLen:  f.FrameLen,
		Host:      f.HostTimestamp,
	}
}

// hub fans frame events out to websocket clients.  A slow client misses
// events; it never holds up frame delivery.
type hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[chan FrameEvent]struct{}
}

func newHub() *hub {
	return &hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[chan FrameEvent]struct{}),
	}
}

func (h *hub) add() chan FrameEvent {
	c := make(chan FrameEvent, clientBuffer)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *hub) remove(c chan FrameEvent) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Clients is the number of connected websocket clients
func (h *hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) publish(e FrameEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c <- e:
		default:
		}
	}
}

func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			log.WithField("addr", r.RemoteAddr).Errorf("Websocket handshake failed for frame stream: %v", err)
		}
		return
	}
	go h.serve(ws)
}

func (h *hub) serve(ws *websocket.Conn) {
	clog := log.WithField("addr", ws.RemoteAddr())
	clog.Info("connected to frame stream")
	events := h.add()
	defer func() {
		h.remove(events)
		ws.Close()
		clog.Info("disconnected from frame stream")
	}()
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	// Even though we don't care about incoming messages, we need to read from
	// the socket in order to process control messages.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case e := <-events:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(e); err != nil {
				return
			}
		case <-pingTicker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}
