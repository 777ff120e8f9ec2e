package connection

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// listen starts a TCP server on a random local port. handler runs once per
// accepted connection.
func listen(t *testing.T, handler func(net.Conn)) net.Listener {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handler(conn)
			}()
		}
	}()

	return ln
}

func testClientConfig(addr string) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Addr = addr
	cfg.DialTimeout = time.Second
	cfg.BufferSize = 100
	return cfg
}

func TestClient_Connect(t *testing.T) {
	ln := listen(t, func(conn net.Conn) {
		io.Copy(io.Discard, conn)
	})

	client := NewClient(testClientConfig(ln.Addr().String()), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestClient_SendAndReceive(t *testing.T) {
	ln := listen(t, func(conn net.Conn) {
		buf := make([]byte, 64)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		conn.Write(buf[:n]) // echo
		io.Copy(io.Discard, conn)
	})

	client := NewClient(testClientConfig(ln.Addr().String()), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	before := time.Now()
	if err := client.Send([]byte("COT$S|WINZ24#")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var got []byte
	deadline := time.After(2 * time.Second)
	for len(got) < len("COT$S|WINZ24#") {
		select {
		case msg := <-client.Messages():
			if msg.ReceivedAt.Before(before) {
				t.Errorf("ReceivedAt = %v, before send at %v", msg.ReceivedAt, before)
			}
			got = append(got, msg.Data...)
		case <-deadline:
			t.Fatalf("timeout, got %q", got)
		}
	}

	if string(got) != "COT$S|WINZ24#" {
		t.Errorf("echo = %q, want %q", got, "COT$S|WINZ24#")
	}
}

func TestClient_PeerCloseDeliversEOF(t *testing.T) {
	ln := listen(t, func(conn net.Conn) {
		conn.Write([]byte("COT!A|1#"))
	})

	client := NewClient(testClientConfig(ln.Addr().String()), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if !errors.Is(err, io.EOF) {
			t.Errorf("error = %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for EOF")
	}

	select {
	case msg := <-client.Messages():
		if string(msg.Data) != "COT!A|1#" {
			t.Errorf("data = %q", msg.Data)
		}
	default:
		t.Error("data read before EOF was not delivered")
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient(testClientConfig("127.0.0.1:1"), nil)

	if err := client.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want %v", err, ErrNotConnected)
	}
}

func TestClient_ConnectAfterClose(t *testing.T) {
	client := NewClient(testClientConfig("127.0.0.1:1"), nil)
	client.Close()

	if err := client.Connect(context.Background()); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("Connect() error = %v, want %v", err, ErrAlreadyClosed)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateSubscribed, "subscribed"},
		{StateReconnecting, "reconnecting"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}

	if !StateStopped.Terminal() || !StateFailed.Terminal() || StateClosed.Terminal() {
		t.Error("Terminal() mismatch")
	}
}
