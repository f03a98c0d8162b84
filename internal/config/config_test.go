package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dutow/galera/internal/ist"
)

func TestResolveListenTargetPrefersRecvBind(t *testing.T) {
	c := Config{RecvAddr: "tcp://10.0.0.1:4567", RecvBind: "0.0.0.0:4567"}
	lt, err := c.ResolveListenTarget()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:4567", lt.BindAddr)
	require.Equal(t, "tcp://10.0.0.1:4567", lt.AdvertAddr)
}

func TestResolveListenTargetFallsBackToBasePortPlusOne(t *testing.T) {
	c := Config{BaseHost: "10.0.0.1", BasePort: 4567}
	lt, err := c.ResolveListenTarget()
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1:4568", lt.BindAddr)
	require.Equal(t, "tcp://10.0.0.1:4568", lt.AdvertAddr)
}

func TestResolveListenTargetErrorsWithNoSource(t *testing.T) {
	_, err := Config{}.ResolveListenTarget()
	require.ErrorIs(t, err, ist.ErrInvalidConfig)
}

func TestResolveListenTargetChoosesTLSWhenSSLKeyConfigured(t *testing.T) {
	c := Config{RecvAddr: "10.0.0.1:4567", SSLKey: "/etc/ist/key.pem"}
	lt, err := c.ResolveListenTarget()
	require.NoError(t, err)
	require.Equal(t, "ssl://10.0.0.1:4567", lt.AdvertAddr)
}

func TestResolveListenTargetExplicitSchemeWins(t *testing.T) {
	c := Config{RecvAddr: "tcp://10.0.0.1:4567", SSLKey: "/etc/ist/key.pem"}
	lt, err := c.ResolveListenTarget()
	require.NoError(t, err)
	require.Equal(t, "tcp://10.0.0.1:4567", lt.AdvertAddr)
}

func TestVerifyPeerCertificate(t *testing.T) {
	require.False(t, VerifyPeerCertificate(6))
	require.True(t, VerifyPeerCertificate(7))
}
