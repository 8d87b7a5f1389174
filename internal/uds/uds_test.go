package uds

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortSockPath keeps socket paths under the 104-byte limit some platforms impose.
func shortSockPath(t *testing.T, name string) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "hwgw-uds-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, name)
}

func startServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	sock := shortSockPath(t, "t.sock")
	srv := NewServer(sock, nil)
	srv.Handle("ping", func(*Request) *Response {
		return SuccessResponse(map[string]string{"status": "ok"})
	})
	srv.Handle("echo", func(req *Request) *Response {
		var p map[string]string
		if err := (&Response{Success: true, Data: req.Params}).Decode(&p); err != nil {
			return ErrorResponse(ErrCodeInternal, err.Error())
		}
		return SuccessResponse(p)
	})
	srv.Handle("boom", func(*Request) *Response { panic("boom") })
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	return srv, NewClient(sock, 5*time.Second)
}

func TestFraming_RoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		req, _ := NewRequest("status", map[string]int{"n": 1})
		_ = WriteFrame(a, req)
	}()

	var got Request
	require.NoError(t, ReadFrame(b, &got))
	assert.Equal(t, "status", got.Command)
	assert.Equal(t, ProtocolVersion, got.ProtocolVersion)
	assert.JSONEq(t, `{"n":1}`, string(got.Params))
}

func TestWriteFrame_TooLarge(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	err := WriteFrame(a, strings.Repeat("x", maxFrame+1))
	assert.ErrorContains(t, err, "too large")
}

func TestServer_Ping(t *testing.T) {
	_, client := startServer(t)

	var out map[string]string
	require.NoError(t, client.Call("ping", nil, &out))
	assert.Equal(t, "ok", out["status"])
}

func TestServer_Params(t *testing.T) {
	_, client := startServer(t)

	var out map[string]string
	require.NoError(t, client.Call("echo", map[string]string{"target": "n00dles"}, &out))
	assert.Equal(t, "n00dles", out["target"])
}

func TestServer_UnknownCommand(t *testing.T) {
	_, client := startServer(t)

	err := client.Call("nope", nil, nil)
	var detail *ErrorDetail
	require.ErrorAs(t, err, &detail)
	assert.Equal(t, ErrCodeUnknownCommand, detail.Code)
}

func TestServer_ProtocolMismatch(t *testing.T) {
	_, client := startServer(t)

	resp, err := client.roundTrip(&Request{ProtocolVersion: 99, Command: "ping"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrCodeProtocolMismatch, resp.Error.Code)
}

func TestServer_HandlerPanicKeepsServing(t *testing.T) {
	_, client := startServer(t)

	err := client.Call("boom", nil, nil)
	require.Error(t, err, "connection closes without a response")
	assert.NotErrorIs(t, err, ErrNotRunning)

	assert.NoError(t, client.Call("ping", nil, nil))
}

func TestServer_StopRemovesSocket(t *testing.T) {
	sock := shortSockPath(t, "s.sock")
	srv := NewServer(sock, nil)
	require.NoError(t, srv.Start())

	_, err := os.Stat(sock)
	require.NoError(t, err)

	srv.Stop()
	srv.Stop()
	_, err = os.Stat(sock)
	assert.True(t, os.IsNotExist(err))
}

func TestClient_NoDaemon(t *testing.T) {
	client := NewClient(shortSockPath(t, "missing.sock"), time.Second)

	err := client.Call("ping", nil, nil)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.ErrorContains(t, err, "ping: ")
}

func TestClient_StaleSocket(t *testing.T) {
	sock := shortSockPath(t, "stale.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	// closing a unix listener unlinks the path, so keep the file behind
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())

	err = NewClient(sock, time.Second).Call("ping", nil, nil)
	assert.ErrorIs(t, err, ErrNotRunning)
}
