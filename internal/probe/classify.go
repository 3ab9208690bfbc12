package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"tankprobe/internal/models"
)

// Classify maps a dial, write, or read error onto a coarse kind.
func Classify(err error) models.ErrorKind {
	if err == nil {
		return ""
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return models.KindTimeout
		}
		return models.KindUnresolvable
	}

	switch {
	case errors.Is(err, context.Canceled):
		return models.KindCanceled
	case isTimeout(err):
		return models.KindTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return models.KindRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNABORTED):
		return models.KindReset
	case errors.Is(err, syscall.EPIPE):
		return models.KindBrokenPipe
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return models.KindUnreachable
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe), errors.Is(err, io.EOF):
		return models.KindClosed
	}
	return models.KindOther
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
