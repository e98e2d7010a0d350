// Package ctlplane implements the daemon's local control socket.
//
// # Overview
//
// Clients connect to a Unix socket and exchange fixed-size messages: a
// 4-byte message type in host byte order followed by a 256-byte payload.
// The payload holds a NUL-terminated network name for addif and delif and
// is zero otherwise. Every request gets exactly one reply, ok or error.
//
//	zonefwd addif lan → Client → Unix Socket → Server → loop goroutine
//
// # Key Types
//
//   - [Message]: one wire message, with [ReadMessage] and [WriteMessage]
//   - [Server]: accepts one connection at a time and hands each request
//     to the daemon loop as a [Request]
//   - [Client]: used by the CLI subcommands
//
// # Example
//
//	srv, err := ctlplane.Listen(path, logger, nil)
//	go srv.Serve(ctx)
//	for req := range srv.Requests() {
//		req.Respond(handle(req.Msg))
//	}
package ctlplane
