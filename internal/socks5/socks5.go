// Package socks5 implements the minimal subset of RFC 1928 the proxy needs
// from a client: unauthenticated greeting, CONNECT only, no BIND or UDP
// ASSOCIATE support.
package socks5

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/pkg/errors"
)

const (
	version5 = 0x05

	methodNoAuthRequired = 0x00

	cmdConnect = 0x01

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	replySuccess        = 0x00
	replyGeneralFailure = 0x01
)

// ErrUnsupportedVersion is returned when the client's greeting or request
// does not carry SOCKS version 5.
var ErrUnsupportedVersion = errors.New("unsupported socks version")

// ErrUnsupportedCommand is returned when the client requests anything other
// than CONNECT.
var ErrUnsupportedCommand = errors.New("unsupported socks command")

// ErrUnsupportedAddressType is returned for an ATYP outside IPv4, domain
// name, and IPv6.
var ErrUnsupportedAddressType = errors.New("unsupported socks address type")

// Negotiate performs the SOCKS5 handshake on conn and returns the
// client-requested target address ("host:port"), dialable as-is. On any
// protocol violation it writes a general-failure reply (where the wire
// format has progressed far enough to send one) and returns an error; the
// caller is expected to close the connection without forwarding any bytes.
func Negotiate(conn net.Conn) (string, error) {
	if err := readGreeting(conn); err != nil {
		return "", err
	}

	if err := sendMethodSelection(conn); err != nil {
		return "", err
	}

	target, err := readRequest(conn)
	if err != nil {
		writeFailureReply(conn)
		return "", err
	}

	if err := sendSuccessReply(conn); err != nil {
		return "", err
	}

	return target, nil
}

// readGreeting consumes VER(1) NMETHODS(1) METHODS(NMETHODS). The method
// list's contents are not inspected: the proxy only ever offers no-auth, so
// there is nothing to negotiate. nmethods == 0 is a legal, if useless,
// greeting and is accepted.
func readGreeting(r io.Reader) error {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return errors.Wrap(err, "read greeting header")
	}

	if head[0] != version5 {
		return errors.Wrapf(ErrUnsupportedVersion, "got %#x", head[0])
	}

	nmethods := int(head[1])
	if nmethods > 0 {
		methods := make([]byte, nmethods)
		if _, err := io.ReadFull(r, methods); err != nil {
			return errors.Wrap(err, "read methods")
		}
	}

	return nil
}

func sendMethodSelection(w io.Writer) error {
	_, err := w.Write([]byte{version5, methodNoAuthRequired})
	return errors.Wrap(err, "write method selection")
}

// readRequest consumes VER(1) CMD(1) RSV(1) ATYP(1) DST.ADDR DST.PORT(2) and
// returns the dial target.
func readRequest(r io.Reader) (string, error) {
	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return "", errors.Wrap(err, "read request header")
	}

	if head[0] != version5 {
		return "", errors.Wrapf(ErrUnsupportedVersion, "got %#x", head[0])
	}

	if head[1] != cmdConnect {
		return "", errors.Wrapf(ErrUnsupportedCommand, "got %#x", head[1])
	}

	host, err := readAddress(r, head[3])
	if err != nil {
		return "", err
	}

	var portBuf [2]byte
	if _, err := io.ReadFull(r, portBuf[:]); err != nil {
		return "", errors.Wrap(err, "read port")
	}
	port := binary.BigEndian.Uint16(portBuf[:])

	return net.JoinHostPort(host, fmt.Sprintf("%d", port)), nil
}

func readAddress(r io.Reader, atyp byte) (string, error) {
	switch atyp {
	case atypIPv4:
		var addr [4]byte
		if _, err := io.ReadFull(r, addr[:]); err != nil {
			return "", errors.Wrap(err, "read ipv4 address")
		}
		return net.IP(addr[:]).String(), nil

	case atypDomain:
		var length [1]byte
		if _, err := io.ReadFull(r, length[:]); err != nil {
			return "", errors.Wrap(err, "read domain length")
		}
		name := make([]byte, length[0])
		if _, err := io.ReadFull(r, name); err != nil {
			return "", errors.Wrap(err, "read domain name")
		}
		return string(name), nil

	case atypIPv6:
		var addr [16]byte
		if _, err := io.ReadFull(r, addr[:]); err != nil {
			return "", errors.Wrap(err, "read ipv6 address")
		}
		return formatIPv6(addr), nil

	default:
		return "", errors.Wrapf(ErrUnsupportedAddressType, "got %#x", atyp)
	}
}

// formatIPv6 renders addr as eight colon-separated, zero-padded 16-bit hex
// groups. net.IP.String() would instead produce RFC 5952's compressed form
// (e.g. "::1"), which the stored target/peer addresses must not use.
func formatIPv6(addr [16]byte) string {
	groups := make([]string, 8)
	for i := 0; i < 8; i++ {
		groups[i] = fmt.Sprintf("%02x%02x", addr[2*i], addr[2*i+1])
	}
	return strings.Join(groups, ":")
}

// sendSuccessReply always reports the bound address as 0.0.0.0:0: the proxy
// does not allocate a distinct listening socket per relayed connection, so
// there is no real bind address to report.
func sendSuccessReply(w io.Writer) error {
	reply := []byte{version5, replySuccess, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}
	_, err := w.Write(reply)
	return errors.Wrap(err, "write success reply")
}

func writeFailureReply(w io.Writer) {
	reply := []byte{version5, replyGeneralFailure, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}
	_, _ = w.Write(reply)
}
