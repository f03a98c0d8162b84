// Package config defines the IST subsystem's configuration, loaded
// through viper the way a host process's top-level config is
// (config/config.go), and the recv_addr/recv_bind/base_port+1 derivation
// rules a joiner uses to pick its IST listen address.
package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/viper"

	"github.com/dutow/galera/internal/ist"
	"github.com/dutow/galera/internal/wire"
)

// Config is the IST-relevant slice of the host process's configuration.
// mapstructure tags follow the convention of binding a
// dotted-key viper document onto a plain struct.
type Config struct {
	RecvAddr string `mapstructure:"ist.recv_addr"`
	RecvBind string `mapstructure:"ist.recv_bind"`
	KeepKeys bool   `mapstructure:"ist.keep_keys"`

	BaseHost string `mapstructure:"base_host"`
	BasePort int    `mapstructure:"base_port"`

	SSLKey string `mapstructure:"socket.ssl_key"`
}

// Default returns the zero-value config with keep_keys defaulted to true,
// the historical default for the certification-index key material
// forwarded to the write-set deserializer.
func Default() Config {
	return Config{KeepKeys: true}
}

// Load reads Config out of an already-populated viper instance, the way
// a host process's cmd packages bind cobra flags into viper and then
// unmarshal into a Config struct.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("ist: load config: %w", err)
	}
	return cfg, nil
}

// ListenTarget is the resolved scheme + bind host:port a Receiver should
// listen on, plus the advertisable address to return from Prepare.
type ListenTarget struct {
	Scheme     wire.Scheme
	BindAddr   string
	AdvertAddr string
}

// ResolveListenTarget implements the recv_bind/recv_addr/base_host+1
// fallback chain and scheme selection (explicit scheme wins, else TLS iff
// an SSL key is configured).
func (c Config) ResolveListenTarget() (ListenTarget, error) {
	advert := c.RecvAddr
	bind := c.RecvBind
	if bind == "" {
		bind = advert
	}
	if bind == "" {
		if c.BaseHost == "" {
			return ListenTarget{}, ist.ErrInvalidConfig
		}
		port := c.BasePort + 1
		bind = wire.WithPort(c.BaseHost, port)
		if advert == "" {
			advert = bind
		}
	}
	if advert == "" {
		advert = bind
	}

	bindScheme, bindHostPort, err := wire.ParseAddr(bind)
	if err != nil {
		return ListenTarget{}, err
	}
	scheme := wire.ResolveScheme(bindScheme, c.SSLKey != "")

	advertScheme, advertHostPort, err := wire.ParseAddr(advert)
	if err != nil {
		return ListenTarget{}, err
	}
	if advertScheme == "" {
		advertScheme = scheme
	}

	return ListenTarget{
		Scheme:     scheme,
		BindAddr:   bindHostPort,
		AdvertAddr: string(advertScheme) + "://" + advertHostPort,
	}, nil
}

// VerifyPeerCertificate reports whether the joiner's TLS listener should
// require and verify the donor's client certificate for the given IST
// protocol version. Donors running protocol versions below 7 have a bug
// that makes them present a null certificate during the handshake, so
// requiring one there would reject every legitimate donor; verification
// is only meaningful at version >= 7.
func VerifyPeerCertificate(version int) bool {
	return version >= 7
}

// NormalizeHostPort ensures host:port has an explicit numeric port,
// defaulting to port if none is present.
func NormalizeHostPort(hostport string, port int) (string, error) {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport, nil
	}
	return net.JoinHostPort(hostport, strconv.Itoa(port)), nil
}
