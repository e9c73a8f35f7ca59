package database

import (
	"context"
	"io"
	"net"
	"net/url"
	"testing"

	"pms-exporter/internal/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDatabaseDSN(t *testing.T) {
	t.Run("explicit dsn wins", func(t *testing.T) {
		dsn, err := BuildDatabaseDSN(infra.Config{DatabaseDSN: testDSN, DatabaseHost: "ignored"})
		require.NoError(t, err)
		assert.Equal(t, testDSN, dsn)
	})

	t.Run("missing parts", func(t *testing.T) {
		_, err := BuildDatabaseDSN(infra.Config{})
		assert.ErrorContains(t, err, "host")

		_, err = BuildDatabaseDSN(infra.Config{DatabaseHost: "db"})
		assert.ErrorContains(t, err, "user")

		_, err = BuildDatabaseDSN(infra.Config{DatabaseHost: "db", DatabaseUser: "pm"})
		assert.ErrorContains(t, err, "name")
	})

	t.Run("built from parts", func(t *testing.T) {
		dsn, err := BuildDatabaseDSN(infra.Config{
			DatabaseHost:     "db",
			DatabaseUser:     "pm",
			DatabasePassword: "s3cret",
			DatabaseName:     "readings",
		})
		require.NoError(t, err)

		parsed, err := url.Parse(dsn)
		require.NoError(t, err)
		assert.Equal(t, "postgres", parsed.Scheme)
		assert.Equal(t, "db:5432", parsed.Host)
		assert.Equal(t, "/readings", parsed.Path)
		assert.Equal(t, "pm", parsed.User.Username())
		password, _ := parsed.User.Password()
		assert.Equal(t, "s3cret", password)
		assert.Equal(t, "disable", parsed.Query().Get("sslmode"))
	})
}

func TestShouldCheckDatabase(t *testing.T) {
	assert.False(t, ShouldCheckDatabase(infra.Config{}))
	assert.True(t, ShouldCheckDatabase(infra.Config{DatabaseHost: "db"}))
	assert.True(t, ShouldCheckDatabase(infra.Config{DatabaseDSN: testDSN}))
}

func TestWaitForDatabaseWithoutHost(t *testing.T) {
	err := WaitForDatabase(context.Background(), infra.Config{}, nil)
	assert.NoError(t, err)
}

func TestWaitForDatabaseReachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	host, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)

	cfg := infra.Config{DatabaseDSN: "postgres://pm@" + net.JoinHostPort(host, port) + "/readings"}
	err = WaitForDatabase(context.Background(), cfg, infra.NewLogger(io.Discard, "test"))
	assert.NoError(t, err)
}

func TestWaitForDatabaseStopsOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = WaitForDatabase(ctx, infra.Config{DatabaseHost: host, DatabasePort: port}, nil)
	assert.Error(t, err)
}
