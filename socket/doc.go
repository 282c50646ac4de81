// File: socket/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package socket implements asynchronous TCP and UDP sockets on top of a
// reactor.
//
// A Socket is created unconnected with New and then either connects
// (Connect, ConnectAsync) or listens (Listen, ListenUDP). Incoming data and
// errors reach the application through an api.Handler whose calls are
// serialized on the socket strand:
//
//	s := socket.New(api.HandlerFuncs{
//		Read:  func(p []byte) int { return len(p) },
//		Error: func(err error) { log.L.WithError(err).Info("closed") },
//	})
//	if err := s.Connect("localhost", "7", false, time.Second); err != nil {
//		return err
//	}
//	s.SendString("ping\n")
//
// Destroy may be called from anywhere, including the handler itself. The
// socket stops calling hooks immediately and releases its resources once
// every outstanding DestructionLock has been returned.
package socket
