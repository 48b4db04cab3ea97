package net

import (
	"fmt"
	"net"
)

// ListenLocalhost listens on an OS-assigned TCP port on the loopback interface.
func ListenLocalhost() (*net.TCPListener, error) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("resolving 127.0.0.1:0: %w", err)
	}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening to acquire port: %w", err)
	}
	return listener, nil
}

// Port returns the TCP port l is bound to.
func Port(l net.Listener) int {
	return l.Addr().(*net.TCPAddr).Port
}
