// Package rcon wraps the remote console protocol the game servers speak.
// A Console is a single command/response session; it is acquired per pipeline
// invocation and must be closed on every exit path.
package rcon

import (
	"net"

	gorcon "github.com/gorcon/rcon"
	"github.com/rs/zerolog/log"

	"pickup-matchmaker/metrics"
)

// Console is a session-oriented command channel. Responses are not parsed
// beyond success/failure of the send, except where a caller reads a cvar.
type Console interface {
	Send(command string) (string, error)
	Close() error
}

// Client is a Console backed by a live RCON connection.
type Client struct {
	conn *gorcon.Conn
}

// Dial opens an authenticated RCON session to the given server.
func Dial(address, port, password string) (*Client, error) {
	conn, err := gorcon.Dial(net.JoinHostPort(address, port), password)
	if err != nil {
		log.Error().Err(err).Str("address", address).Str("port", port).Msg("rcon: connection failed")
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Send(command string) (string, error) {
	response, err := c.conn.Execute(command)
	if err != nil {
		metrics.RconCommands.WithLabelValues("failure").Inc()
		return "", err
	}
	metrics.RconCommands.WithLabelValues("success").Inc()
	return response, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
