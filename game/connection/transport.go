package connection

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a framed duplex connection to the server. *websocket.Conn
// satisfies it.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Transport to a ws:// or wss:// URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Transport, error) {
	return f(ctx, url)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	dialer    *websocket.Dialer
	readLimit int64
}

// WebsocketDialerOption configures a WebsocketDialer.
type WebsocketDialerOption func(*WebsocketDialer)

// WithHandshakeTimeout bounds the opening handshake of each dial.
func WithHandshakeTimeout(d time.Duration) WebsocketDialerOption {
	return func(w *WebsocketDialer) {
		w.dialer.HandshakeTimeout = d
	}
}

// WithTLSConfig sets the TLS configuration used for wss:// URLs.
func WithTLSConfig(cfg *tls.Config) WebsocketDialerOption {
	return func(w *WebsocketDialer) {
		w.dialer.TLSClientConfig = cfg
	}
}

// WithReadLimit caps the size of a single inbound frame. Zero means no limit.
func WithReadLimit(n int64) WebsocketDialerOption {
	return func(w *WebsocketDialer) {
		w.readLimit = n
	}
}

// NewWebsocketDialer creates a dialer with gorilla's default settings.
func NewWebsocketDialer(opts ...WebsocketDialerOption) *WebsocketDialer {
	base := *websocket.DefaultDialer
	w := &WebsocketDialer{dialer: &base}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dial opens a WebSocket connection.
func (w *WebsocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	conn, resp, err := w.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if w.readLimit > 0 {
		conn.SetReadLimit(w.readLimit)
	}
	return conn, nil
}

// IsTLSError reports whether err comes from TLS negotiation, as opposed to
// DNS, TCP or WebSocket handshake failures.
func IsTLSError(err error) bool {
	if err == nil {
		return false
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return true
	}
	var authorityErr x509.UnknownAuthorityError
	if errors.As(err, &authorityErr) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return true
	}
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &invalidErr) {
		return true
	}

	// crypto/tls reports most protocol failures as plain errors prefixed "tls: "
	return strings.Contains(err.Error(), "tls: ")
}
