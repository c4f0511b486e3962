package rcon

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlayerCount(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     int
		wantErr  bool
	}{
		{
			name:     "modern vanilla",
			response: "There are 3 of a max of 20 players online: alice, bob, carol",
			want:     3,
		},
		{
			name:     "legacy vanilla",
			response: "There are 0 of max 20 players online:",
			want:     0,
		},
		{
			name:     "empty response",
			response: "",
			wantErr:  true,
		},
		{
			name:     "not a number",
			response: "There are many of a max of 20 players online:",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePlayerCount(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writePacket(&buf, 7, packetTypeCommand, "list"))

	id, body, err := readPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, int32(7), id)
	assert.Equal(t, "list", body)
}

func TestReadPacket_InvalidLength(t *testing.T) {
	var buf bytes.Buffer
	// Length claims 4 bytes, below the protocol minimum of 10.
	buf.Write([]byte{4, 0, 0, 0})

	_, _, err := readPacket(&buf)
	require.Error(t, err)
}

// fakeServer speaks just enough RCON to answer one auth and one command.
func fakeServer(t *testing.T, password, reply string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		id, body, err := readPacket(conn)
		if err != nil {
			return
		}
		if body != password {
			_ = writePacket(conn, -1, packetTypeCommand, "")
			return
		}
		_ = writePacket(conn, id, packetTypeCommand, "")

		id, _, err = readPacket(conn)
		if err != nil {
			return
		}
		_ = writePacket(conn, id, packetTypeResponse, reply)
	}()

	return ln.Addr().String()
}

func TestClientPlayerCount(t *testing.T) {
	addr := fakeServer(t, "hunter2", "There are 2 of a max of 20 players online: alice, bob")

	client := NewClient(addr, "hunter2", time.Second)
	count, err := client.PlayerCount(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestClientPlayerCount_BadPassword(t *testing.T) {
	addr := fakeServer(t, "hunter2", "")

	client := NewClient(addr, "wrong", time.Second)
	_, err := client.PlayerCount(context.Background())

	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestClientPlayerCount_Unreachable(t *testing.T) {
	client := NewClient("127.0.0.1:1", "hunter2", 100*time.Millisecond)
	_, err := client.PlayerCount(context.Background())
	require.Error(t, err)
}
