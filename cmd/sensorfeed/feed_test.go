package main

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/sensorstream/logger"
	"github.com/cyberinferno/sensorstream/sensorbuffer"
	"github.com/cyberinferno/sensorstream/sensorclient"
	"github.com/cyberinferno/sensorstream/tcpserver"
)

func startServer(t *testing.T) (*tcpserver.SensorServer, *sensorbuffer.Buffer) {
	t.Helper()

	buf := sensorbuffer.New()
	s, err := tcpserver.New(tcpserver.Config{
		Host:         "127.0.0.1",
		IdleTimeout:  time.Second,
		PollInterval: 10 * time.Millisecond,
	}, buf, logger.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	return s, buf
}

func TestFeed(t *testing.T) {
	t.Run("skips blank and END lines and finishes with END", func(t *testing.T) {
		s, buf := startServer(t)
		client := sensorclient.New(sensorclient.DefaultConfig(s.Addr().String()))

		err := feed(client, strings.NewReader("1,2,3\r\n\nEND\n4,5,6"), 0, logger.NewNopLogger())
		require.NoError(t, err)
		assert.Equal(t, sensorclient.Closed, client.State())

		require.Eventually(t, func() bool { return len(s.Sessions()) == 1 }, 3*time.Second, 5*time.Millisecond)
		assert.Equal(t, "1,2,3\n4,5,6\n", buf.String())

		session := s.Sessions()[0]
		assert.Equal(t, tcpserver.EndSentinel, session.Cause)
		assert.Equal(t, 2, session.Lines)
	})

	t.Run("interval spaces records", func(t *testing.T) {
		s, buf := startServer(t)
		client := sensorclient.New(sensorclient.DefaultConfig(s.Addr().String()))

		started := time.Now()
		require.NoError(t, feed(client, strings.NewReader("1\n2\n3\n"), 20*time.Millisecond, logger.NewNopLogger()))
		assert.GreaterOrEqual(t, time.Since(started), 60*time.Millisecond)

		require.Eventually(t, func() bool { return len(s.Sessions()) == 1 }, 3*time.Second, 5*time.Millisecond)
		assert.Equal(t, "1\n2\n3\n", buf.String())
	})

	t.Run("unreachable server", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		client := sensorclient.New(sensorclient.DefaultConfig(addr))
		err = feed(client, strings.NewReader("1,2,3\n"), 0, logger.NewNopLogger())
		assert.Error(t, err)
	})
}
