// Package websocket carries the room event protocol over WebSocket
// connections.
//
// The Hub upgrades each request, gives the connection a UUID and runs two
// goroutines for it. The read pump decodes frames and hands them to a
// Dispatcher (the room coordinator). The write pump drains a buffered send
// queue and keeps the connection alive with pings.
//
// Message Protocol:
//
// Every frame is one JSON envelope:
//   - Incoming: {"event": "joinRoom", "ack": 1, "data": {...}}
//   - Outgoing: {"event": "gameReady", "data": {...}}
//   - Acks:     {"event": "ack", "ack": 1, "data": {...}}
//
// Frames that do not decode are dropped and the connection stays open.
//
// Usage:
//
//	hub := websocket.NewHub(websocket.Options{Logger: log})
//	coordinator := session.New(hub, session.Config{Logger: log})
//	hub.SetDispatcher(coordinator)
//	go hub.Run(ctx)
//	go coordinator.Run(ctx)
//
//	router.HandleFunc("/ws", hub.ServeWS)
//
// Backpressure:
//
// Sends never block. When a connection's queue is full the hub closes that
// connection, and its read pump reports the disconnect as usual.
package websocket
