package broker

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer runs an in-process NATS core server for tests, so the test suite
// exercises the real nats.go client wire path instead of a hand-rolled fake broker.
type EmbeddedServer struct {
	server *natsserver.Server
}

// StartEmbeddedServer starts a NATS server on a random loopback port.
func StartEmbeddedServer() (*EmbeddedServer, error) {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("starting embedded broker: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(4 * time.Second) {
		return nil, fmt.Errorf("embedded broker did not become ready")
	}
	return &EmbeddedServer{server: srv}, nil
}

// ClientURL returns the URI to connect a Broker to this embedded server.
func (s *EmbeddedServer) ClientURL() string {
	return s.server.ClientURL()
}

// Shutdown stops the embedded server.
func (s *EmbeddedServer) Shutdown() {
	s.server.Shutdown()
}
