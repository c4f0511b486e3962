// Package rcon implements the subset of the Minecraft RCON protocol
// needed to query a running server for its player count.
package rcon

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// Packet types defined by the Source RCON protocol, which Minecraft reuses.
const (
	packetTypeAuth     = 3
	packetTypeCommand  = 2
	packetTypeResponse = 0
)

// Payload limit per the protocol; anything larger is a corrupt frame.
const maxPacketSize = 4110

// ErrAuthFailed indicates the server rejected the RCON password.
var ErrAuthFailed = errors.New("rcon: authentication rejected")

// Client talks to a Minecraft server over RCON. Each command opens a
// fresh connection so a wedged server cannot hold state between ticks.
type Client struct {
	addr     string
	password string
	timeout  time.Duration
}

// NewClient creates a client for the server at addr.
func NewClient(addr, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		addr:     addr,
		password: password,
		timeout:  timeout,
	}
}

// PlayerCount returns the number of players currently online.
func (c *Client) PlayerCount(ctx context.Context) (int, error) {
	response, err := c.Command(ctx, "list")
	if err != nil {
		return 0, err
	}

	count, err := parsePlayerCount(response)
	if err != nil {
		return 0, fmt.Errorf("parse list response %q: %w", response, err)
	}
	return count, nil
}

// Command authenticates and executes a single command.
func (c *Client) Command(ctx context.Context, command string) (string, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return "", fmt.Errorf("dial rcon %s: %w", c.addr, err)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("set rcon deadline: %w", err)
	}

	if err := c.authenticate(conn); err != nil {
		return "", err
	}

	if err := writePacket(conn, 2, packetTypeCommand, command); err != nil {
		return "", fmt.Errorf("send command: %w", err)
	}

	_, body, err := readPacket(conn)
	if err != nil {
		return "", fmt.Errorf("read command response: %w", err)
	}
	return body, nil
}

func (c *Client) authenticate(conn net.Conn) error {
	if err := writePacket(conn, 1, packetTypeAuth, c.password); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	id, _, err := readPacket(conn)
	if err != nil {
		return fmt.Errorf("read auth response: %w", err)
	}
	if id == -1 {
		return ErrAuthFailed
	}
	return nil
}

// writePacket frames a payload: length, request id, type, body, two NUL bytes.
// All integers are little-endian.
func writePacket(w io.Writer, id, packetType int32, payload string) error {
	length := int32(4 + 4 + len(payload) + 2)
	buf := make([]byte, 0, 4+length)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(length))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(id))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(packetType))
	buf = append(buf, payload...)
	buf = append(buf, 0, 0)

	_, err := w.Write(buf)
	return err
}

func readPacket(r io.Reader) (id int32, body string, err error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, "", err
	}

	length := int32(binary.LittleEndian.Uint32(header[:]))
	if length < 10 || length > maxPacketSize {
		return 0, "", fmt.Errorf("invalid packet length %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, "", err
	}

	id = int32(binary.LittleEndian.Uint32(payload[0:4]))
	body = string(payload[8 : length-2])
	return id, body, nil
}

// parsePlayerCount extracts the online count from a vanilla `list`
// response, e.g. "There are 3 of a max of 20 players online: ...".
func parsePlayerCount(response string) (int, error) {
	fields := strings.Fields(response)
	if len(fields) < 3 {
		return 0, errors.New("response too short")
	}

	count, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, err
	}
	if count < 0 {
		return 0, fmt.Errorf("negative player count %d", count)
	}
	return count, nil
}
