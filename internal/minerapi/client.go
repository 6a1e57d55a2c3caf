package minerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"gitlab.com/TitanInd/minerwatch/internal/interfaces"
	"gitlab.com/TitanInd/minerwatch/internal/lib"
)

const readChunkSize = 4096

// Client speaks the CGMiner-style JSON-over-TCP protocol. Every probe opens
// its own short-lived socket: devices are polled at minute-scale intervals,
// so connection setup cost is immaterial and statelessness avoids stale-socket bugs
type Client struct {
	dialer net.Dialer
	log    interfaces.ILogger
}

func NewClient(log interfaces.ILogger) *Client {
	return &Client{
		dialer: net.Dialer{},
		log:    log,
	}
}

// Command sends a single read query {"command": cmd} and returns the parsed response
func (c *Client) Command(ctx context.Context, addr Address, cmd string, timeout time.Duration) (map[string]interface{}, error) {
	return c.Probe(ctx, addr, map[string]interface{}{"command": cmd}, timeout)
}

// Probe writes one JSON object to the device and accumulates the response until
// the remote closes the connection or a NUL terminator is seen, whichever comes
// first. Some firmware streams a NUL-terminated frame without ever closing.
// Unparseable payloads come back as {"raw": <string>} instead of an error,
// callers decide whether that is usable. No retries here, retry policy belongs
// to callers
func (c *Client) Probe(ctx context.Context, addr Address, req map[string]interface{}, timeout time.Duration) (map[string]interface{}, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(probeCtx, "tcp", addr.String())
	if err != nil {
		return nil, classifyNetErr(err, probeCtx)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, lib.WrapError(ErrUnreachable, err)
	}

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Write(reqBytes); err != nil {
		return nil, classifyNetErr(err, probeCtx)
	}

	raw, err := readFrame(conn)
	if err != nil {
		return nil, classifyNetErr(err, probeCtx)
	}

	return parsePayload(raw), nil
}

// readFrame accumulates bytes until EOF or the first NUL byte
func readFrame(conn net.Conn) ([]byte, error) {
	var acc []byte
	chunk := make([]byte, readChunkSize)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			acc = append(acc, chunk[:n]...)
			if bytes.IndexByte(chunk[:n], 0x00) >= 0 {
				return acc, nil
			}
		}
		if err == io.EOF {
			return acc, nil
		}
		if err != nil {
			// partial payload is still usable if anything arrived
			if len(acc) > 0 && isTimeout(err) {
				return acc, nil
			}
			return nil, err
		}
	}
}

// parsePayload strips NUL bytes, trims whitespace and parses JSON, falling
// back to a {"raw": ...} wrapper when the device sent something unparseable
func parsePayload(raw []byte) map[string]interface{} {
	cleaned := bytes.TrimSpace(bytes.ReplaceAll(raw, []byte{0x00}, nil))

	var payload map[string]interface{}
	if err := json.Unmarshal(cleaned, &payload); err != nil {
		return map[string]interface{}{"raw": string(cleaned)}
	}
	return payload
}

func classifyNetErr(err error, ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded || isTimeout(err) {
		return lib.WrapError(ErrTimeout, err)
	}
	return lib.WrapError(ErrUnreachable, err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)
}
