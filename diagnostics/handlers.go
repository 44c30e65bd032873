package diagnostics

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	wsClients    = make(map[*websocket.Conn]bool)
	wsClientsMux = &sync.Mutex{}

	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// The embedding application serves GUI clients from the same host
		CheckOrigin: func(r *http.Request) bool { return true },
	}
)

func SetupHandlers() {
	http.HandleFunc("/diagnostics", handleDiagnostics)
	http.HandleFunc("/diagnostics/ws", handleDiagnosticsWS)
}

func handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Recent())
}

func handleDiagnosticsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade diagnostics websocket: %v", err)
		return
	}

	wsClientsMux.Lock()
	wsClients[conn] = true
	wsClientsMux.Unlock()

	// Reader loop only to detect client disconnects
	go func() {
		defer func() {
			wsClientsMux.Lock()
			delete(wsClients, conn)
			wsClientsMux.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func broadcast(event Event) {
	wsClientsMux.Lock()
	defer wsClientsMux.Unlock()
	for client := range wsClients {
		if err := client.WriteJSON(event); err != nil {
			log.Printf("Error sending diagnostic event to client: %v", err)
			client.Close()
			delete(wsClients, client)
		}
	}
}
