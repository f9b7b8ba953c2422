package net

import (
	"errors"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgerdriver/src/common"
	"github.com/mosaicnetworks/ledgerdriver/src/identity"
)

func newTestTransport(t *testing.T) *NetworkTransport {
	trans, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, common.NewTestEntry(t, "net"))
	if err != nil {
		t.Fatal(err)
	}
	go trans.Listen()
	t.Cleanup(func() { trans.Close() })
	return trans
}

// serve answers the first RPC received by trans with resp, after checking the
// command equals expected.
func serve(t *testing.T, trans Transport, expected interface{}, resp interface{}, err error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case rpc := <-trans.Consumer():
			if !reflect.DeepEqual(rpc.Command, expected) {
				t.Errorf("command mismatch: %#v %#v", rpc.Command, expected)
			}
			rpc.Respond(resp, err)
		case <-time.After(2 * time.Second):
			t.Errorf("timeout")
		}
	}()
	return done
}

func registerRequest() RegisterRequest {
	return RegisterRequest{
		Node: identity.NodeInfo{
			Address:       "localhost:10002",
			LegalIdentity: identity.DummyBankA.Party(),
			AdvertisedServices: []identity.ServiceInfo{
				{Type: identity.SimpleNotary},
			},
		},
	}
}

func TestTransport_StartStop(t *testing.T) {
	trans, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, common.NewTestEntry(t, "net"))
	if err != nil {
		t.Fatal(err)
	}
	if err := trans.Close(); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := trans.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestTransport_Register(t *testing.T) {
	trans1 := newTestTransport(t)
	trans2 := newTestTransport(t)

	args := registerRequest()
	resp := RegisterResponse{Accepted: true, Size: 2}

	done := serve(t, trans1, &args, &resp, nil)

	var out RegisterResponse
	if err := trans2.Register(trans1.LocalAddr(), &args, &out); err != nil {
		t.Fatalf("err: %v", err)
	}
	<-done

	if !reflect.DeepEqual(out, resp) {
		t.Fatalf("response mismatch: %#v %#v", out, resp)
	}
}

func TestTransport_Join(t *testing.T) {
	trans1 := newTestTransport(t)
	trans2 := newTestTransport(t)

	args := JoinRequest{
		ServiceID: identity.RaftNotary,
		Member:    identity.DummyNotary.Party(),
		Address:   "localhost:10010",
	}
	resp := JoinResponse{Accepted: true, Members: []string{"localhost:10005", "localhost:10010"}}

	done := serve(t, trans1, &args, &resp, nil)

	var out JoinResponse
	if err := trans2.Join(trans1.LocalAddr(), &args, &out); err != nil {
		t.Fatalf("err: %v", err)
	}
	<-done

	if !reflect.DeepEqual(out, resp) {
		t.Fatalf("response mismatch: %#v %#v", out, resp)
	}
}

func TestTransport_RemoteError(t *testing.T) {
	trans1 := newTestTransport(t)
	trans2 := newTestTransport(t)

	args := registerRequest()
	done := serve(t, trans1, &args, &RegisterResponse{}, errors.New("not the network map"))

	var out RegisterResponse
	err := trans2.Register(trans1.LocalAddr(), &args, &out)
	<-done
	if err == nil || err.Error() != "not the network map" {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestTransport_UnknownCommandDropsConnection(t *testing.T) {
	trans := newTestTransport(t)

	conn, err := net.Dial("tcp", trans.LocalAddr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"Command":"gossip","Body":{}}` + "\n")); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected the connection to be closed")
	}
}

func TestNetworkTransport_PooledConn(t *testing.T) {
	trans1 := newTestTransport(t)

	go func() {
		for rpc := range trans1.Consumer() {
			req := rpc.Command.(*RegisterRequest)
			rpc.Respond(&RegisterResponse{Accepted: true, Size: len(req.Node.AdvertisedServices)}, nil)
		}
	}()

	trans2 := newTestTransport(t)

	args := registerRequest()
	for i := 0; i < 5; i++ {
		var out RegisterResponse
		if err := trans2.Register(trans1.LocalAddr(), &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}
		if !out.Accepted || out.Size != 1 {
			t.Fatalf("unexpected response %#v", out)
		}
	}

	trans2.poolLock.Lock()
	pooled := len(trans2.pool[trans1.LocalAddr()])
	trans2.poolLock.Unlock()
	if pooled != 1 {
		t.Fatalf("sequential RPCs should reuse a single connection, pool has %d", pooled)
	}
}

func TestTCPTransport_BadAddr(t *testing.T) {
	_, err := NewTCPTransport("0.0.0.0:0", "", 1, 0, common.NewTestEntry(t, "net"))
	if err != errNotAdvertisable {
		t.Fatalf("err: %v", err)
	}
}

func TestTCPTransport_WithAdvertise(t *testing.T) {
	trans, err := NewTCPTransport("0.0.0.0:0", "127.0.0.1:12345", 1, 0, common.NewTestEntry(t, "net"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans.Close()
	if trans.AdvertiseAddr() != "127.0.0.1:12345" {
		t.Fatalf("bad: %v", trans.AdvertiseAddr())
	}
}

func TestTransport_ClosedRejectsRPC(t *testing.T) {
	trans, err := NewTCPTransport("127.0.0.1:0", "", 1, time.Second, common.NewTestEntry(t, "net"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	trans.Close()

	var out RegisterResponse
	if err := trans.Register("127.0.0.1:1", &RegisterRequest{}, &out); err != ErrTransportShutdown {
		t.Fatalf("expected ErrTransportShutdown, got %v", err)
	}
}
