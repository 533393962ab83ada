package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	// events queued for a client beyond this are dropped
	clientQueue = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(req *http.Request) bool {
		return true
	},
}

// wsClient is one websocket connection; only its writer goroutine
// writes to ws
type wsClient struct {
	ws      *websocket.Conn
	addr    string
	send    chan []byte
	dropped int
}

// @Summary	Open websocket for realtime status information
// @Router		/api/ws [get]
// @Param		Upgrade	header	string	true	"websocket"
// @Tags		base
// @Success	101
func (a *Api) handleWebsocket(w http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		a.log.Warn(fmt.Sprintf("couldn't make websocket: %s", err))
		return
	}
	defer func(ws *websocket.Conn) {
		err := ws.Close()
		if err != nil {
			a.log.Debug(fmt.Sprintf("could not close websocket: %s", err))
		}
	}(ws)

	client := &wsClient{
		ws:   ws,
		addr: ws.RemoteAddr().String(),
		send: make(chan []byte, clientQueue),
	}
	a.addClient(client)

	done := make(chan struct{})
	go a.websocketWriter(client, done)

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			break
		}
		a.log.Debug(fmt.Sprintf("received: %s", msg))
	}

	close(done)
	a.removeClient(client)
}

func (a *Api) addClient(c *wsClient) {
	a.wsMu.Lock()
	defer a.wsMu.Unlock()
	a.wsClients[c] = struct{}{}
	a.Stats.SetWsClients(len(a.wsClients))
}

func (a *Api) removeClient(c *wsClient) {
	a.wsMu.Lock()
	defer a.wsMu.Unlock()
	delete(a.wsClients, c)
	a.Stats.SetWsClients(len(a.wsClients))
}

func (a *Api) websocketWriter(c *wsClient, done <-chan struct{}) {
	pingTicker := time.NewTicker(2 * time.Second)
	defer pingTicker.Stop()

	for {
		packet, err := json.Marshal(a.Stats.Snapshot())
		if err != nil {
			return
		}
		if err := c.write(packet); err != nil {
			return
		}

	events:
		for {
			select {
			case <-pingTicker.C:
				break events
			case packet := <-c.send:
				if err := c.write(packet); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}
}

func (c *wsClient) write(packet []byte) error {
	err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, packet)
}

// broadcast queues v for every connected websocket client without
// waiting on any of them
func (a *Api) broadcast(v any) {
	packet, err := json.Marshal(v)
	if err != nil {
		a.log.Error(fmt.Sprintf("could not encode event: %s", err))
		return
	}

	a.wsMu.Lock()
	defer a.wsMu.Unlock()
	for c := range a.wsClients {
		select {
		case c.send <- packet:
		default:
			c.dropped++
			if c.dropped == 1 || c.dropped%clientQueue == 0 {
				a.log.Warn(fmt.Sprintf("websocket client %s is not keeping up, %d events dropped", c.addr, c.dropped))
			}
		}
	}
}
