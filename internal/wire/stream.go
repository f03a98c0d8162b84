package wire

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Scheme is the URI scheme of a listen/dial address: "tcp://" for
// cleartext, "ssl://" for TLS.
type Scheme string

const (
	SchemeTCP Scheme = "tcp"
	SchemeSSL Scheme = "ssl"
)

// Stream is the minimal capability IST needs from a connection: a single
// interface both net.Conn and *tls.Conn already satisfy, avoiding
// if(use_tls)/else branching at every call site.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	RemoteAddr() net.Addr
}

// Listener accepts Streams. tcpListener and tlsListener adapt a
// *net.TCPListener and a tls.Listen listener to it.
type Listener interface {
	Accept() (Stream, error)
	Addr() net.Addr
	Close() error
}

type tcpListener struct{ l *net.TCPListener }

func (t tcpListener) Accept() (Stream, error) {
	c, err := t.l.Accept()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (t tcpListener) Addr() net.Addr { return t.l.Addr() }
func (t tcpListener) Close() error   { return t.l.Close() }

type tlsListener struct{ l net.Listener }

func (t tlsListener) Accept() (Stream, error) {
	c, err := t.l.Accept()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (t tlsListener) Addr() net.Addr { return t.l.Addr() }
func (t tlsListener) Close() error   { return t.l.Close() }

// ParseAddr splits a "scheme://host:port" or bare "host:port" address into
// its scheme (defaulting to "") and host:port.
func ParseAddr(addr string) (scheme Scheme, hostport string, err error) {
	if !strings.Contains(addr, "://") {
		return "", addr, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", fmt.Errorf("parse address %q: %w", addr, err)
	}
	return Scheme(u.Scheme), u.Host, nil
}

// ResolveScheme picks tcp/ssl: explicit scheme wins; otherwise TLS is
// chosen when an SSL key is configured.
func ResolveScheme(explicit Scheme, sslKeyConfigured bool) Scheme {
	if explicit != "" {
		return explicit
	}
	if sslKeyConfigured {
		return SchemeSSL
	}
	return SchemeTCP
}

// Listen binds a listener for the given scheme. Port 0 asks the OS to
// assign a port, which Listener.Addr() then reports back.
func Listen(scheme Scheme, hostport string, tlsConfig *tls.Config) (Listener, error) {
	switch scheme {
	case SchemeSSL:
		if tlsConfig == nil {
			return nil, fmt.Errorf("ist: ssl scheme requires a tls.Config")
		}
		l, err := tls.Listen("tcp", hostport, tlsConfig)
		if err != nil {
			return nil, err
		}
		return tlsListener{l: l}, nil
	default:
		addr, err := net.ResolveTCPAddr("tcp", hostport)
		if err != nil {
			return nil, err
		}
		l, err := net.ListenTCP("tcp", addr)
		if err != nil {
			return nil, err
		}
		return tcpListener{l: l}, nil
	}
}

// Dial connects to a donor/joiner peer over the given scheme.
func Dial(scheme Scheme, hostport string, tlsConfig *tls.Config) (Stream, error) {
	switch scheme {
	case SchemeSSL:
		if tlsConfig == nil {
			return nil, fmt.Errorf("ist: ssl scheme requires a tls.Config")
		}
		c, err := tls.Dial("tcp", hostport, tlsConfig)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		c, err := net.Dial("tcp", hostport)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// SubstitutePort replaces the port component of addr with the one actually
// bound by l, used when the caller asked for port 0 so the advertised
// address reflects the OS-assigned port.
func SubstitutePort(addr string, l Listener) (string, error) {
	scheme, hostport, err := ParseAddr(addr)
	if err != nil {
		return "", err
	}
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}
	_, boundPort, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		return "", fmt.Errorf("split bound address %q: %w", l.Addr(), err)
	}
	out := net.JoinHostPort(host, boundPort)
	if scheme != "" {
		out = string(scheme) + "://" + out
	}
	return out, nil
}

// WithPort appends ":port" to a bare host that has none.
func WithPort(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
