package http_utils

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

const DefaultUserAgent = "apifuzz"

// Failure categories attached to every *core.TransportError. They explain
// why an operation ended up unreachable.
const (
	FailureConnectionRefused = "connection_refused"
	FailureConnectionReset   = "connection_reset"
	FailureConnectionClosed  = "connection_closed"
	FailureDNSResolution     = "dns_resolution"
	FailureUnreachable       = "network_unreachable"
	FailureTimeout           = "timeout"
	FailureCancelled         = "cancelled"
	FailureTLS               = "tls_error"
	FailureProtocol          = "protocol_error"
	FailureInvalidRequest    = "invalid_request"
	FailureUnknown           = "unknown"
)

// CategorizeRequestError maps a failed request to one of the failure
// categories. nil maps to the empty string.
func CategorizeRequestError(err error) string {
	if err == nil {
		return ""
	}

	var dnsErr *net.DNSError
	var certErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var recordErr tls.RecordHeaderError
	switch {
	case errors.Is(err, context.Canceled):
		return FailureCancelled
	case IsTimeoutError(err):
		return FailureTimeout
	case errors.As(err, &dnsErr):
		return FailureDNSResolution
	case errors.Is(err, syscall.ECONNREFUSED):
		return FailureConnectionRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return FailureConnectionReset
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return FailureUnreachable
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return FailureConnectionClosed
	case errors.As(err, &certErr), errors.As(err, &unknownAuthority), errors.As(err, &hostnameErr), errors.As(err, &recordErr):
		return FailureTLS
	}

	// Some transports only report a message.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return FailureConnectionRefused
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"):
		return FailureConnectionReset
	case strings.Contains(msg, "no such host"):
		return FailureDNSResolution
	case strings.Contains(msg, "unreachable"):
		return FailureUnreachable
	case strings.Contains(msg, "eof"):
		return FailureConnectionClosed
	case strings.Contains(msg, "tls"), strings.Contains(msg, "certificate"):
		return FailureTLS
	case strings.Contains(msg, "malformed"), strings.Contains(msg, "protocol"):
		return FailureProtocol
	}
	return FailureUnknown
}
