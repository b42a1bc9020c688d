package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewConnects(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := New(context.Background(), srv.Addr(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "healthcheck", "1", 0).Err())
	got, err := srv.Get("healthcheck")
	require.NoError(t, err)
	require.Equal(t, "1", got)
}

func TestNewAppliesDefaultTimeout(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := New(context.Background(), srv.Addr(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.Equal(t, defaultTimeout, client.Options().ReadTimeout)
	require.Equal(t, defaultTimeout, client.Options().DialTimeout)
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	_, err := New(context.Background(), addr, time.Second)
	require.Error(t, err)
}
