// Package probe opens one TCP connection, writes a payload, waits for a
// reply, and records how far it got. Every blocking call has a deadline and
// nothing is retried.
package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tankprobe/internal/logger"
	"tankprobe/internal/models"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 5 * time.Second
	DefaultBufferSize     = 1024
)

// Dialer opens the probe connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options bounds a single probe run.
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// WriteTimeout defaults to ConnectTimeout.
	WriteTimeout time.Duration
	Payload      []byte
	// BufferSize caps the single receive.
	BufferSize int
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = o.ConnectTimeout
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.Payload == nil {
		o.Payload = models.DefaultHandshake().Payload()
	}
	return o
}

// Prober runs connect, send, receive against an endpoint and always closes
// the socket it opened.
type Prober struct {
	dialer Dialer
}

// New returns a Prober. A nil dialer uses a plain *net.Dialer.
func New(dialer Dialer) *Prober {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &Prober{dialer: dialer}
}

// Run probes ep with a default Prober.
func Run(ctx context.Context, ep models.Endpoint, opts Options) models.ProbeResult {
	return New(nil).Run(ctx, ep, opts)
}

// Run performs exactly one attempt. Failures are recorded in the result,
// never returned.
func (p *Prober) Run(ctx context.Context, ep models.Endpoint, opts Options) models.ProbeResult {
	opts = opts.withDefaults()
	log := logger.WithComponent("probe").With().
		Str("endpoint", ep.Address()).
		Logger()

	res := models.ProbeResult{
		RunID: uuid.NewString(),
		State: models.StateInit,
	}

	started := time.Now()
	p.session(ctx, ep, opts, &res, log)
	res.Outcome = res.State
	res.State = models.StateClosed
	res.Closed = true
	res.Timing.TotalMS = millis(time.Since(started))

	log.Debug().
		Str("outcome", string(res.Outcome)).
		Float64("total_ms", res.Timing.TotalMS).
		Msg("probe finished")
	return res
}

func (p *Prober) session(ctx context.Context, ep models.Endpoint, opts Options, res *models.ProbeResult, log zerolog.Logger) {
	conn := p.connect(ctx, ep, opts, res, log)
	if conn == nil {
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debug().Err(err).Msg("close connection")
		}
	}()

	if !send(conn, opts, res, log) {
		return
	}
	receive(conn, opts, res, log)
}

func (p *Prober) connect(ctx context.Context, ep models.Endpoint, opts Options, res *models.ProbeResult, log zerolog.Logger) net.Conn {
	res.State = models.StateConnecting
	if err := ep.Validate(); err != nil {
		fail(res, models.PhaseConnect, models.StateConnectFailed, models.KindOther, err, log)
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", ep.Address())
	elapsed := millis(time.Since(start))
	res.Timing.ConnectMS = &elapsed
	if err != nil {
		fail(res, models.PhaseConnect, models.StateConnectFailed, Classify(err), err, log)
		return nil
	}

	res.Connected = true
	res.State = models.StateConnected
	log.Debug().Float64("connect_ms", elapsed).Msg("connected")
	return conn
}

func send(conn net.Conn, opts Options, res *models.ProbeResult, log zerolog.Logger) bool {
	res.State = models.StateSending
	start := time.Now()
	err := conn.SetWriteDeadline(start.Add(opts.WriteTimeout))
	if err == nil {
		_, err = conn.Write(opts.Payload)
	}
	elapsed := millis(time.Since(start))
	res.Timing.SendMS = &elapsed
	if err != nil {
		fail(res, models.PhaseSend, models.StateSendFailed, Classify(err), err, log)
		return false
	}

	res.Sent = true
	res.State = models.StateSent
	log.Debug().Int("bytes", len(opts.Payload)).Msg("payload sent")
	return true
}

func receive(conn net.Conn, opts Options, res *models.ProbeResult, log zerolog.Logger) {
	res.State = models.StateReceiving
	buf := make([]byte, opts.BufferSize)

	start := time.Now()
	err := conn.SetReadDeadline(start.Add(opts.ReadTimeout))
	var n int
	if err == nil {
		n, err = conn.Read(buf)
	}
	elapsed := millis(time.Since(start))
	res.Timing.ReceiveMS = &elapsed

	switch {
	case n > 0:
		res.Received = append([]byte(nil), buf[:n]...)
		res.State = models.StateReceived
		log.Debug().Int("bytes", n).Msg("response received")
	case err == nil || errors.Is(err, io.EOF):
		fail(res, models.PhaseReceive, models.StateReceiveEmpty, models.KindNoResponse, nil, log)
	case isTimeout(err):
		fail(res, models.PhaseReceive, models.StateReceiveTimeout, models.KindTimeout, nil, log)
	default:
		fail(res, models.PhaseReceive, models.StateReceiveFailed, Classify(err), err, log)
	}
}

func fail(res *models.ProbeResult, phase models.Phase, state models.State, kind models.ErrorKind, err error, log zerolog.Logger) {
	stageErr := &models.StageError{Phase: phase, Kind: kind, Message: string(kind)}
	if err != nil {
		stageErr.Message = err.Error()
	}

	switch phase {
	case models.PhaseConnect:
		res.ConnectError = stageErr
	case models.PhaseSend:
		res.SendError = stageErr
	case models.PhaseReceive:
		res.ReceiveError = stageErr
	}
	res.State = state

	log.Warn().
		Str("phase", string(phase)).
		Str("kind", string(kind)).
		Str("error", stageErr.Message).
		Msg("probe stage failed")
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
