package sandbox

import (
	"encoding/base64"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// Daemon is the server side of the Remote wire protocol: it accepts
// websocket connections and applies every operation to a Local sandbox.
// It runs inside the container that owns the workspace, so the host pays
// one connection instead of one exec per command.
type Daemon struct {
	sb       *Local
	upgrader websocket.Upgrader
}

// NewDaemon creates a daemon serving the given workspace.
func NewDaemon(sb *Local) *Daemon {
	return &Daemon{
		sb: sb,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 20,
			WriteBufferSize: 1 << 20,
			// The daemon binds inside the sandbox network; origin checks are
			// the host's concern.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and answers requests until the peer
// disconnects. Requests on one connection are handled sequentially, matching
// the client's serialized round trips.
func (d *Daemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("daemon upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req daemonRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if err := conn.WriteJSON(d.handle(req)); err != nil {
			return
		}
	}
}

func (d *Daemon) handle(req daemonRequest) daemonResponse {
	resp := daemonResponse{ID: req.ID}

	switch req.Op {
	case "exec":
		res := d.sb.Execute(req.Cmd)
		resp.Output = res.Output
		resp.ExitCode = res.ExitCode

	case "write":
		content, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			resp.Error = "decode content: " + err.Error()
			break
		}
		if err := d.sb.WriteFile(req.Path, content); err != nil {
			resp.Error = err.Error()
		}

	case "read":
		content, err := d.sb.ReadFile(req.Path)
		if err != nil {
			resp.Error = err.Error()
			break
		}
		resp.Content = base64.StdEncoding.EncodeToString(content)

	case "ls":
		entries, err := d.sb.ListFiles(req.Path)
		if err != nil {
			resp.Error = err.Error()
			break
		}
		resp.Entries = entries

	default:
		resp.Error = "unknown op: " + req.Op
	}

	return resp
}
