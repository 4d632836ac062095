package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"stepwise/sandbox"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The terminal is only reachable behind the same origin policy of the
	// deployment; cross-origin access is the proxy's concern.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// resizeMsg is the control message a client sends to adjust the pty size.
type resizeMsg struct {
	Type string `json:"type"` // "resize"
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// handleTerminal bridges a websocket to an interactive shell in the local
// sandbox workspace. Text messages starting with '{' are tried as control
// messages first; everything else is raw keyboard input.
func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	if s.terminal == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "terminal requires a local sandbox")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("terminal upgrade: %v", err)
		return
	}
	defer conn.Close()

	term, err := sandbox.OpenTerminal(s.terminal)
	if err != nil {
		conn.WriteMessage(websocket.TextMessage, []byte("failed to start shell: "+err.Error()))
		return
	}
	defer term.Close()

	// pty → websocket
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := term.Read(buf)
			if n > 0 {
				if err := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	// websocket → pty
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType == websocket.TextMessage && len(data) > 0 && data[0] == '{' {
			var msg resizeMsg
			if json.Unmarshal(data, &msg) == nil && msg.Type == "resize" {
				if err := term.Resize(msg.Rows, msg.Cols); err != nil {
					log.Printf("terminal resize: %v", err)
				}
				continue
			}
		}
		if _, err := term.Write(data); err != nil {
			break
		}
	}
	term.Close()
	<-done
}
