package models

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Endpoint is the host and port a probe connects to.
type Endpoint struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// Address returns the endpoint in host:port form, bracketing IPv6 literals.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Address()
}

// Validate checks the port range and that the host is non-empty. Whether the
// host resolves is only known once the probe dials it.
func (e Endpoint) Validate() error {
	host := strings.TrimSpace(e.Host)
	if host == "" {
		return errors.New("endpoint host is required")
	}
	if strings.ContainsAny(host, " \t\r\n") {
		return fmt.Errorf("endpoint host %q contains whitespace", e.Host)
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("endpoint port %d out of range 1-65535", e.Port)
	}
	return nil
}

// Timing carries elapsed milliseconds per stage. Stages that never ran stay nil.
type Timing struct {
	ConnectMS *float64 `json:"connect_ms,omitempty"`
	SendMS    *float64 `json:"send_ms,omitempty"`
	ReceiveMS *float64 `json:"receive_ms,omitempty"`
	TotalMS   float64  `json:"total_ms"`
}

// ProbeResult captures how far a single probe got.
type ProbeResult struct {
	RunID string `json:"run_id"`
	// State is StateClosed once Run returns. Outcome keeps the state the
	// sequence ended in before the socket was released.
	State        State       `json:"state"`
	Outcome      State       `json:"outcome"`
	Connected    bool        `json:"connected"`
	ConnectError *StageError `json:"connect_error,omitempty"`
	Sent         bool        `json:"sent"`
	SendError    *StageError `json:"send_error,omitempty"`
	Received     []byte      `json:"received,omitempty"`
	ReceiveError *StageError `json:"receive_error,omitempty"`
	Closed       bool        `json:"closed"`
	Timing       Timing      `json:"timing"`
}

// Err returns the failure that ended the sequence, or nil when bytes were received.
func (r ProbeResult) Err() error {
	switch {
	case r.ConnectError != nil:
		return r.ConnectError
	case r.SendError != nil:
		return r.SendError
	case r.ReceiveError != nil:
		return r.ReceiveError
	}
	return nil
}

// OK reports whether every stage completed and the peer sent at least one byte.
func (r ProbeResult) OK() bool {
	return r.Connected && r.Sent && len(r.Received) > 0 && r.Err() == nil
}

// Record is a probe result stamped with the endpoint and start time, as kept in history.
type Record struct {
	Endpoint  Endpoint    `json:"endpoint"`
	StartedAt time.Time   `json:"started_at"`
	Result    ProbeResult `json:"result"`
}
