package rpc

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgerdriver/src/common"
	"github.com/mosaicnetworks/ledgerdriver/src/config"
	"github.com/mosaicnetworks/ledgerdriver/src/executor"
	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/mosaicnetworks/ledgerdriver/src/poll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBackend struct {
	registered atomic.Bool
	shutdowns  atomic.Int32
}

func (b *testBackend) NodeInfo() identity.NodeInfo {
	return identity.NodeInfo{
		Address:       "localhost:10002",
		LegalIdentity: identity.DummyBankA.Party(),
	}
}

func (b *testBackend) NetworkMapRegistered() bool { return b.registered.Load() }

func (b *testBackend) RequestShutdown() { b.shutdowns.Add(1) }

func newTestServer(t *testing.T, users []config.User) (*Server, *testBackend) {
	backend := &testBackend{}
	server, err := NewServer("127.0.0.1:0", users, backend, common.NewTestEntry(t, "rpc"))
	require.NoError(t, err)
	go server.Serve()
	t.Cleanup(func() { server.Close() })
	return server, backend
}

func TestLoginAndOps(t *testing.T) {
	server, backend := newTestServer(t, nil)

	client := NewClient(server.Addr(), time.Second, common.NewTestEntry(t, "client"))
	conn, err := client.Start(NodeUser.Username, NodeUser.Password)
	require.NoError(t, err)
	defer conn.Close()

	ops := conn.Proxy()

	info, err := ops.NodeIdentity()
	require.NoError(t, err)
	assert.Equal(t, backend.NodeInfo(), info)

	registered, err := ops.NetworkMapRegistered()
	require.NoError(t, err)
	assert.False(t, registered)

	backend.registered.Store(true)
	registered, err = ops.NetworkMapRegistered()
	require.NoError(t, err)
	assert.True(t, registered)

	require.NoError(t, ops.Shutdown())
	assert.EqualValues(t, 1, backend.shutdowns.Load())
}

func TestConfiguredUsers(t *testing.T) {
	user := config.User{Username: "user1", Password: "test", Permissions: []string{"ALL"}}
	server, _ := newTestServer(t, []config.User{user})

	client := NewClient(server.Addr(), time.Second, common.NewTestEntry(t, "client"))

	conn, err := client.Start("user1", "test")
	require.NoError(t, err)
	conn.Close()

	_, err = client.Start("user1", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = client.Start("nobody", "test")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoggedOutSessionIsRejected(t *testing.T) {
	server, _ := newTestServer(t, nil)

	client := NewClient(server.Addr(), time.Second, common.NewTestEntry(t, "client"))
	conn, err := client.Start(NodeUser.Username, NodeUser.Password)
	require.NoError(t, err)
	defer conn.Close()

	stale := &Connection{addr: conn.addr, rpc: conn.rpc, token: "not-a-token", logger: conn.logger}
	_, err = stale.NodeIdentity()
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestStartFailsWithoutServer(t *testing.T) {
	server, _ := newTestServer(t, nil)
	addr := server.Addr()
	server.Close()

	client := NewClient(addr, 100*time.Millisecond, common.NewTestEntry(t, "client"))
	_, err := client.Start(NodeUser.Username, NodeUser.Password)
	assert.Error(t, err)
}

func TestStartTimesOutOnSilentPeer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		// hold the connection without ever answering
		if conn, err := l.Accept(); err == nil {
			accepted <- conn
		}
	}()
	defer func() {
		select {
		case conn := <-accepted:
			conn.Close()
		default:
		}
	}()

	client := NewClient(l.Addr().String(), 100*time.Millisecond, common.NewTestEntry(t, "client"))

	start := time.Now()
	_, err = client.Start(NodeUser.Username, NodeUser.Password)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitUntilRegisteredWithNetworkMap(t *testing.T) {
	server, backend := newTestServer(t, nil)

	logger := common.NewTestEntry(t, "poll")
	exec := executor.New(2, nil, logger)
	defer exec.Shutdown()

	client := NewClient(server.Addr(), time.Second, common.NewTestEntry(t, "client"))
	conn, err := client.Start(NodeUser.Username, NodeUser.Password)
	require.NoError(t, err)
	defer conn.Close()

	f := WaitUntilRegisteredWithNetworkMap(poll.NewPoller(exec, logger), "Bank A", 20*time.Millisecond, conn.Proxy())
	assert.False(t, f.IsDone())

	backend.registered.Store(true)
	_, err = f.Get(common.TimeoutContext(t, 5*time.Second))
	require.NoError(t, err)
}
