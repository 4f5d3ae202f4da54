// Package websocket pushes patrol and solver updates to browser clients.
//
// A central Hub tracks connections by topic. A topic is either a session ID,
// which receives a state_update message after every change to that session's
// patrol, or SolveTopic(puzzle), which receives search_progress messages
// while an obstruction search for that puzzle runs and a final solved event.
//
// Message Protocol:
//
// Outgoing messages are JSON objects:
//
//	{"topic": "a1b2", "event": "state_update", "patrol_state": {...}}
//	{"topic": "solve:example", "event": "search_progress", "progress": {"done": 32, "total": 40}}
//
// Incoming messages are read only to keep the connection alive.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run()
//	defer hub.Stop()
//
//	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("session"))
//	})
//
// Concurrency:
//
// Registration and queued events are handled by the Run loop. Direct
// broadcasts take the hub's read lock, so they are safe from any goroutine.
// A client whose send buffer fills up is disconnected.
package websocket
