package rcon

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// runFakeServer speaks just enough of the wire protocol to authenticate
// once and echo exec commands back upper-cased, recording each command it
// receives on commands.
func runFakeServer(conn net.Conn, commands chan<- string) {
	defer conn.Close()
	var buf []byte
	tmp := make([]byte, 4096)
	authed := false
	for {
		n, err := conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				pkt, consumed, ok := readFrame(buf)
				if consumed == 0 {
					break
				}
				buf = buf[consumed:]
				if !ok {
					continue
				}
				if !authed {
					if pkt.Type == TypeAuth {
						conn.Write(encodePacket(1, TypeExecCommand, "")) // type 2: auth response
						authed = true
					}
					continue
				}
				if pkt.Type == TypeExecCommand {
					if commands != nil {
						commands <- pkt.Body
					}
					conn.Write(encodePacket(pkt.ID, TypeResponseValue, strings.ToUpper(pkt.Body)))
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func startFakeServer(t *testing.T) (host string, port int, commands chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	commands = make(chan string, 16)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		runFakeServer(conn, commands)
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err = strconv.Atoi(p)
	require.NoError(t, err)
	return h, port, commands
}

func TestClient_ConnectAuthenticatesAndSends(t *testing.T) {
	host, port, commands := startFakeServer(t)

	client := New(host, port, "secret", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.Run(ctx)

	require.Eventually(t, func() bool {
		return client.State() == StateAuthenticated
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := client.Send(context.Background(), "list")
	require.NoError(t, err)
	require.Equal(t, "LIST", resp)
	require.Equal(t, "list", <-commands)
}

func TestClient_SendCached_SkipsSecondWireCall(t *testing.T) {
	host, port, commands := startFakeServer(t)

	client := New(host, port, "secret", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.Run(ctx)

	require.Eventually(t, func() bool {
		return client.State() == StateAuthenticated
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := client.SendCached(context.Background(), "status", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "STATUS", resp)
	require.Equal(t, "status", <-commands)

	resp2, err := client.SendCached(context.Background(), "status", time.Minute)
	require.NoError(t, err)
	require.Equal(t, "STATUS", resp2)

	select {
	case <-commands:
		t.Fatal("expected no second wire call within TTL")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_Send_NotAuthenticatedBeforeConnect(t *testing.T) {
	client := New("127.0.0.1", 1, "x", nil)
	_, err := client.Send(context.Background(), "list")
	require.ErrorIs(t, err, ErrNotAuthenticated)
}
