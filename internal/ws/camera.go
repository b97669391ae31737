package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"awb-agent/internal/model"
)

// CameraHub tracks camera-side connections by camera id and pushes gain
// register envelopes to them.
type CameraHub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewCameraHub() *CameraHub {
	return &CameraHub{clients: map[string]map[*Client]struct{}{}}
}

func (h *CameraHub) Register(cameraID string, conn *websocket.Conn) *Client {
	var c *Client
	c = NewClientWithClose(conn, func() { h.Unregister(cameraID, c) })
	h.add(cameraID, c)
	return c
}

func (h *CameraHub) add(cameraID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cameraID]; !ok {
		h.clients[cameraID] = map[*Client]struct{}{}
	}
	h.clients[cameraID][c] = struct{}{}
}

func (h *CameraHub) Unregister(cameraID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.clients[cameraID]; ok {
		if _, exist := m[c]; exist {
			delete(m, c)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.clients, cameraID)
		}
	}
}

func (h *CameraHub) Connected(cameraID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[cameraID])
}

// PushEnvelope returns the number of clients the envelope was queued for.
// Clients with a full send buffer are dropped.
func (h *CameraHub) PushEnvelope(env model.HardwareEnvelope) int {
	b, err := json.Marshal(model.Event{
		Type:      "camera.gain",
		Payload:   env,
		CreatedAt: env.CreatedAt,
	})
	if err != nil {
		return 0
	}

	// Unregister takes the write lock, so no send channel can close while
	// the read lock is held.
	h.mu.RLock()
	sent := 0
	var full []*Client
	for c := range h.clients[env.CameraID] {
		select {
		case c.send <- b:
			sent++
		default:
			full = append(full, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range full {
		h.Unregister(env.CameraID, c)
	}
	return sent
}
