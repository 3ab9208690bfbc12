package probe

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tankprobe/internal/models"
)

var handshake = []byte("requestedName|test\ntankIDName|test\ntankIDPass|test\n")

// servePeer accepts connections on a loopback listener and hands each one to
// handle. The connection is closed once handle returns.
func servePeer(t *testing.T, handle func(net.Conn)) models.Endpoint {
	t.Helper()

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var wg sync.WaitGroup
	t.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer conn.Close()
				handle(conn)
			}()
		}
	}()

	return models.Endpoint{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}
}

func closedPort(t *testing.T) models.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return models.Endpoint{Host: "127.0.0.1", Port: port}
}

func readPayload(conn net.Conn) []byte {
	buf := make([]byte, len(handshake))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _ := io.ReadFull(conn, buf)
	return buf[:n]
}

func TestRunReceivesReply(t *testing.T) {
	got := make(chan []byte, 1)
	ep := servePeer(t, func(conn net.Conn) {
		got <- readPayload(conn)
		_, _ = conn.Write([]byte("OK"))
	})

	res := Run(context.Background(), ep, Options{ReadTimeout: 2 * time.Second})

	assert.True(t, res.Connected)
	assert.True(t, res.Sent)
	assert.Equal(t, []byte("OK"), res.Received)
	assert.Nil(t, res.ConnectError)
	assert.Nil(t, res.SendError)
	assert.Nil(t, res.ReceiveError)
	assert.Equal(t, models.StateReceived, res.Outcome)
	assert.Equal(t, models.StateClosed, res.State)
	assert.True(t, res.Closed)
	assert.True(t, res.OK())
	assert.NotEmpty(t, res.RunID)
	require.NotNil(t, res.Timing.ConnectMS)
	require.NotNil(t, res.Timing.SendMS)
	require.NotNil(t, res.Timing.ReceiveMS)

	assert.Equal(t, handshake, <-got)
}

func TestRunConnectionRefused(t *testing.T) {
	ep := closedPort(t)

	start := time.Now()
	res := Run(context.Background(), ep, Options{ConnectTimeout: 2 * time.Second})

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.False(t, res.Connected)
	require.NotNil(t, res.ConnectError)
	assert.Equal(t, models.KindRefused, res.ConnectError.Kind)
	assert.Equal(t, models.PhaseConnect, res.ConnectError.Phase)
	assert.False(t, res.Sent)
	assert.Nil(t, res.SendError)
	assert.Nil(t, res.Received)
	assert.Nil(t, res.Timing.SendMS)
	assert.Equal(t, models.StateConnectFailed, res.Outcome)
	assert.Equal(t, models.StateClosed, res.State)
	assert.True(t, res.Closed)
	assert.Equal(t, res.ConnectError, res.Err())
}

func TestRunSilentPeerTimesOut(t *testing.T) {
	done := make(chan struct{})
	ep := servePeer(t, func(conn net.Conn) {
		readPayload(conn)
		<-done
	})
	defer close(done)

	readTimeout := 200 * time.Millisecond
	start := time.Now()
	res := Run(context.Background(), ep, Options{ReadTimeout: readTimeout})
	elapsed := time.Since(start)

	assert.True(t, res.Connected)
	assert.True(t, res.Sent)
	assert.Nil(t, res.Received)
	require.NotNil(t, res.ReceiveError)
	assert.Equal(t, models.KindTimeout, res.ReceiveError.Kind)
	assert.Equal(t, "timeout", res.ReceiveError.Message)
	assert.Equal(t, models.StateReceiveTimeout, res.Outcome)
	assert.GreaterOrEqual(t, elapsed, readTimeout)
	assert.Less(t, elapsed, readTimeout+2*time.Second)
}

func TestRunPeerClosesWithoutReply(t *testing.T) {
	ep := servePeer(t, func(conn net.Conn) {
		readPayload(conn)
	})

	res := Run(context.Background(), ep, Options{ReadTimeout: 2 * time.Second})

	assert.True(t, res.Sent)
	assert.Nil(t, res.Received)
	require.NotNil(t, res.ReceiveError)
	assert.Equal(t, models.KindNoResponse, res.ReceiveError.Kind)
	assert.Equal(t, models.StateReceiveEmpty, res.Outcome)
	assert.False(t, res.OK())
}

func TestRunKeepsFullReply(t *testing.T) {
	reply := bytes.Repeat([]byte("0123456789"), 30)
	ep := servePeer(t, func(conn net.Conn) {
		readPayload(conn)
		_, _ = conn.Write(reply)
	})

	res := Run(context.Background(), ep, Options{ReadTimeout: 2 * time.Second})

	require.Equal(t, models.StateReceived, res.Outcome)
	assert.Equal(t, reply, res.Received)
}

func TestRunSendsCustomPayload(t *testing.T) {
	payload := []byte("action|ping\n")
	got := make(chan []byte, 1)
	ep := servePeer(t, func(conn net.Conn) {
		buf := make([]byte, len(payload))
		_, _ = io.ReadFull(conn, buf)
		got <- buf
		_, _ = conn.Write([]byte{0x01})
	})

	res := Run(context.Background(), ep, Options{Payload: payload, ReadTimeout: 2 * time.Second})

	assert.Equal(t, []byte{0x01}, res.Received)
	assert.Equal(t, payload, <-got)
}

func TestRunIsRepeatable(t *testing.T) {
	ep := servePeer(t, func(conn net.Conn) {
		readPayload(conn)
		_, _ = conn.Write([]byte("OK"))
	})

	first := Run(context.Background(), ep, Options{ReadTimeout: 2 * time.Second})
	for i := 0; i < 3; i++ {
		next := Run(context.Background(), ep, Options{ReadTimeout: 2 * time.Second})
		assert.Equal(t, first.Outcome, next.Outcome)
		assert.Equal(t, first.Received, next.Received)
		assert.NotEqual(t, first.RunID, next.RunID)
	}
}

func TestRunUnresolvableHost(t *testing.T) {
	ep := models.Endpoint{Host: "no-such-host.invalid", Port: 17091}

	res := Run(context.Background(), ep, Options{ConnectTimeout: 3 * time.Second})

	assert.False(t, res.Connected)
	require.NotNil(t, res.ConnectError)
	assert.Equal(t, models.PhaseConnect, res.ConnectError.Phase)
	assert.Equal(t, models.KindUnresolvable, res.ConnectError.Kind)
	assert.Contains(t, res.ConnectError.Message, "no-such-host.invalid")
	assert.False(t, res.Sent)
	assert.Nil(t, res.Timing.SendMS)
	assert.Equal(t, models.StateConnectFailed, res.Outcome)
	assert.Equal(t, models.StateClosed, res.State)
	assert.True(t, res.Closed)
}

func TestRunInvalidEndpointSkipsDial(t *testing.T) {
	dialer := &countingDialer{}
	res := New(dialer).Run(context.Background(), models.Endpoint{Host: "127.0.0.1", Port: 0}, Options{})

	assert.False(t, res.Connected)
	require.NotNil(t, res.ConnectError)
	assert.Equal(t, models.KindOther, res.ConnectError.Kind)
	assert.Zero(t, dialer.dials.Load())
}

// blockingDialer never connects; it only returns once the dial context ends.
type blockingDialer struct{}

func (blockingDialer) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	<-ctx.Done()
	return nil, &net.OpError{Op: "dial", Net: "tcp", Err: ctx.Err()}
}

func TestRunConnectTimeoutIsBounded(t *testing.T) {
	connectTimeout := 150 * time.Millisecond
	start := time.Now()
	res := New(blockingDialer{}).Run(context.Background(),
		models.Endpoint{Host: "192.0.2.1", Port: 17091},
		Options{ConnectTimeout: connectTimeout})
	elapsed := time.Since(start)

	assert.False(t, res.Connected)
	require.NotNil(t, res.ConnectError)
	assert.Equal(t, models.KindTimeout, res.ConnectError.Kind)
	assert.GreaterOrEqual(t, elapsed, connectTimeout)
	assert.Less(t, elapsed, connectTimeout+time.Second)
}

// countingDialer hands out net.Pipe ends and counts Close calls on them.
type countingDialer struct {
	dials  atomic.Int32
	closes atomic.Int32
	// peer, when set, serves the far end of each pipe.
	peer func(net.Conn)
}

func (d *countingDialer) DialContext(_ context.Context, _, _ string) (net.Conn, error) {
	d.dials.Add(1)
	client, server := net.Pipe()
	if d.peer != nil {
		go d.peer(server)
	} else {
		_ = server.Close()
	}
	return &countingConn{Conn: client, closes: &d.closes}, nil
}

type countingConn struct {
	net.Conn
	closes *atomic.Int32
}

func (c *countingConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

func TestRunSendFailure(t *testing.T) {
	dialer := &countingDialer{}
	res := New(dialer).Run(context.Background(), models.Endpoint{Host: "peer", Port: 17091}, Options{})

	assert.True(t, res.Connected)
	assert.False(t, res.Sent)
	require.NotNil(t, res.SendError)
	assert.Equal(t, models.PhaseSend, res.SendError.Phase)
	assert.Equal(t, models.KindClosed, res.SendError.Kind)
	assert.Nil(t, res.ReceiveError)
	assert.Nil(t, res.Timing.ReceiveMS)
	assert.Equal(t, models.StateSendFailed, res.Outcome)
	assert.Equal(t, models.StateClosed, res.State)
	assert.Equal(t, int32(1), dialer.closes.Load())
}

func TestRunReleasesConnectionEveryTime(t *testing.T) {
	dialer := &countingDialer{
		peer: func(conn net.Conn) {
			defer conn.Close()
			readPayload(conn)
			_, _ = conn.Write([]byte("OK"))
		},
	}
	p := New(dialer)

	const runs = 20
	for i := 0; i < runs; i++ {
		res := p.Run(context.Background(), models.Endpoint{Host: "peer", Port: 17091}, Options{ReadTimeout: time.Second})
		require.Equal(t, models.StateReceived, res.Outcome)
	}
	assert.Equal(t, int32(runs), dialer.dials.Load())
	assert.Equal(t, int32(runs), dialer.closes.Load())
}

func TestRunPipePeerCloseIsEmptyResponse(t *testing.T) {
	dialer := &countingDialer{
		peer: func(conn net.Conn) {
			readPayload(conn)
			_ = conn.Close()
		},
	}

	res := New(dialer).Run(context.Background(), models.Endpoint{Host: "peer", Port: 17091}, Options{ReadTimeout: time.Second})

	assert.True(t, res.Sent)
	require.NotNil(t, res.ReceiveError)
	assert.Equal(t, models.StateReceiveEmpty, res.Outcome)
	assert.Equal(t, int32(1), dialer.closes.Load())
}
