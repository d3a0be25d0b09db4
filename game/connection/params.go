package connection

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Default connection values
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = "38281"
)

// URL schemes tried by the dialer, in order
const (
	SchemeSecure = "wss"
	SchemePlain  = "ws"
)

// ErrInvalidParameters is returned for parameters without a host or port.
var ErrInvalidParameters = errors.New("invalid connection parameters")

// Parameters identify the server and slot to connect to. A value is always
// replaced as a whole; there are no partial updates.
type Parameters struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Slot     string `json:"slot"`
	Password string `json:"password"`
}

// DefaultParameters returns parameters pointing at a local server.
func DefaultParameters() Parameters {
	return Parameters{
		Host: DefaultHost,
		Port: DefaultPort,
	}
}

// Address returns host:port, bracketing IPv6 hosts.
func (p Parameters) Address() string {
	return net.JoinHostPort(p.Host, p.Port)
}

// URL returns the server URL for the given scheme.
func (p Parameters) URL(scheme string) string {
	u := url.URL{Scheme: scheme, Host: p.Address()}
	return u.String()
}

// Validate checks that the parameters can be dialed.
func (p Parameters) Validate() error {
	if p.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidParameters)
	}
	if p.Port == "" {
		return fmt.Errorf("%w: port is required", ErrInvalidParameters)
	}
	return nil
}

// Redacted returns a copy that is safe to log or serve.
func (p Parameters) Redacted() Parameters {
	if p.Password != "" {
		p.Password = "****"
	}
	return p
}
