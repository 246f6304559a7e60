package socks5

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// negotiateResult carries Negotiate's return values across the goroutine
// boundary back to the test.
type negotiateResult struct {
	target string
	err    error
}

func runServer(server net.Conn) <-chan negotiateResult {
	done := make(chan negotiateResult, 1)
	go func() {
		target, err := Negotiate(server)
		done <- negotiateResult{target: target, err: err}
	}()
	return done
}

func TestNegotiateConnectIPv4(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := runServer(server)

	_, err := client.Write([]byte{version5, 1, methodNoAuthRequired})
	require.NoError(t, err)

	selection := make([]byte, 2)
	_, err = client.Read(selection)
	require.NoError(t, err)
	require.Equal(t, []byte{version5, methodNoAuthRequired}, selection)

	request := []byte{version5, cmdConnect, 0x00, atypIPv4, 93, 184, 216, 34, 0x01, 0xbb}
	_, err = client.Write(request)
	require.NoError(t, err)

	reply := make([]byte, 10)
	_, err = client.Read(reply)
	require.NoError(t, err)
	require.Equal(t, []byte{version5, replySuccess, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}, reply)

	result := <-done
	require.NoError(t, result.err)
	require.Equal(t, "93.184.216.34:443", result.target)
}

func TestNegotiateConnectDomain(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := runServer(server)

	_, err := client.Write([]byte{version5, 1, methodNoAuthRequired})
	require.NoError(t, err)
	selection := make([]byte, 2)
	_, err = client.Read(selection)
	require.NoError(t, err)

	domain := "example.com"
	request := []byte{version5, cmdConnect, 0x00, atypDomain, byte(len(domain))}
	request = append(request, domain...)
	request = append(request, 0x00, 0x50) // port 80
	_, err = client.Write(request)
	require.NoError(t, err)

	reply := make([]byte, 10)
	_, err = client.Read(reply)
	require.NoError(t, err)
	require.Equal(t, byte(replySuccess), reply[1])

	result := <-done
	require.NoError(t, result.err)
	require.Equal(t, "example.com:80", result.target)
}

func TestNegotiateConnectIPv6(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := runServer(server)

	_, err := client.Write([]byte{version5, 1, methodNoAuthRequired})
	require.NoError(t, err)
	selection := make([]byte, 2)
	_, err = client.Read(selection)
	require.NoError(t, err)

	addr := []byte{0x20, 0x01, 0x0d, 0xb8, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	request := []byte{version5, cmdConnect, 0x00, atypIPv6}
	request = append(request, addr...)
	request = append(request, 0x01, 0xbb) // port 443
	_, err = client.Write(request)
	require.NoError(t, err)

	reply := make([]byte, 10)
	_, err = client.Read(reply)
	require.NoError(t, err)
	require.Equal(t, byte(replySuccess), reply[1])

	result := <-done
	require.NoError(t, result.err)
	require.Equal(t, "[2001:0db8:0000:0000:0000:0000:0000:0001]:443", result.target)
}

func TestNegotiateZeroMethodsAccepted(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := runServer(server)

	_, err := client.Write([]byte{version5, 0})
	require.NoError(t, err)

	selection := make([]byte, 2)
	_, err = client.Read(selection)
	require.NoError(t, err)
	require.Equal(t, []byte{version5, methodNoAuthRequired}, selection)

	request := []byte{version5, cmdConnect, 0x00, atypIPv4, 127, 0, 0, 1, 0x1f, 0x90}
	_, err = client.Write(request)
	require.NoError(t, err)

	reply := make([]byte, 10)
	_, err = client.Read(reply)
	require.NoError(t, err)

	result := <-done
	require.NoError(t, result.err)
	require.Equal(t, "127.0.0.1:8080", result.target)
}

func TestNegotiateRejectsWrongVersion(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := runServer(server)

	// A complete two-byte greeting (no methods): the negotiator rejects the
	// version before reading any method bytes, and a net.Pipe write only
	// returns once every byte has been read.
	_, err := client.Write([]byte{0x04, 0})
	require.NoError(t, err)

	result := <-done
	require.ErrorIs(t, result.err, ErrUnsupportedVersion)
}

func TestNegotiateRejectsUnsupportedCommand(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := runServer(server)

	_, err := client.Write([]byte{version5, 1, methodNoAuthRequired})
	require.NoError(t, err)
	selection := make([]byte, 2)
	_, err = client.Read(selection)
	require.NoError(t, err)

	// BIND (0x02) instead of CONNECT. Only the request header is sent: the
	// command is rejected before any address bytes are read, and a net.Pipe
	// write only returns once every byte has been read.
	request := []byte{version5, 0x02, 0x00, atypIPv4}
	_, err = client.Write(request)
	require.NoError(t, err)

	reply := make([]byte, 10)
	_, err = client.Read(reply)
	require.NoError(t, err)
	require.Equal(t, byte(replyGeneralFailure), reply[1])

	result := <-done
	require.ErrorIs(t, result.err, ErrUnsupportedCommand)
}

func TestNegotiateRejectsUnsupportedAddressType(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := runServer(server)

	_, err := client.Write([]byte{version5, 1, methodNoAuthRequired})
	require.NoError(t, err)
	selection := make([]byte, 2)
	_, err = client.Read(selection)
	require.NoError(t, err)

	request := []byte{version5, cmdConnect, 0x00, 0x7f}
	_, err = client.Write(request)
	require.NoError(t, err)

	reply := make([]byte, 10)
	_, err = client.Read(reply)
	require.NoError(t, err)
	require.Equal(t, byte(replyGeneralFailure), reply[1])

	result := <-done
	require.ErrorIs(t, result.err, ErrUnsupportedAddressType)
}
