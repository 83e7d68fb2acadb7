// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2020
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

// Package multicast sets up the UDP multicast sockets used for both the
// I/Q ingress and the PCM/status egress: join/leave groups, send/recv
// datagrams, IPv4 and IPv6.
package multicast

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// Direction selects how the socket is configured.
type Direction int

const (
	// Input binds the group address/port and joins the group so datagrams
	// sent to it are delivered locally.
	Input Direction = iota
	// Output connects to the group address so Write sends datagrams to
	// it, and sets the multicast TTL/loopback options.
	Output
)

// Config describes one multicast endpoint.
type Config struct {
	Direction Direction
	Addr      string // "host:port", host may be IPv4 or IPv6 multicast
	Interface string // interface name to join on; "" means default
	TTL       int    // IP_MULTICAST_TTL for Output sockets; ignored for Input

	// PassiveJoin additionally joins the group on an Output socket, as a
	// workaround for IGMP-snooping switches that otherwise drop traffic
	// to groups nobody has explicitly subscribed to on that segment. See
	// DESIGN.md for the rationale this makes explicit instead of always
	// silently joining.
	PassiveJoin bool
}

// Socket wraps a UDP connection already joined to (or connected to) its
// multicast group, ready for Read/Write.
type Socket struct {
	Conn *net.UDPConn
	Addr *net.UDPAddr
}

// Open creates and configures a multicast UDP socket per cfg. Errors
// during group join are returned to the caller as non-fatal warnings
// (spec.md §4.5); callers should log and continue rather than abort.
func Open(cfg Config) (*Socket, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("multicast: resolve %q: %w", cfg.Addr, err)
	}
	if !addr.IP.IsMulticast() {
		return nil, fmt.Errorf("multicast: %s is not a multicast address", addr.IP)
	}

	var iface *net.Interface
	if cfg.Interface != "" {
		iface, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("multicast: interface %q: %w", cfg.Interface, err)
		}
	}

	ctx := context.Background()
	var conn *net.UDPConn
	switch cfg.Direction {
	case Input:
		lc := net.ListenConfig{Control: setReuseAndLinger}
		pc, err := lc.ListenPacket(ctx, "udp", addr.String())
		if err != nil {
			return nil, fmt.Errorf("multicast: listen %s: %w", addr, err)
		}
		conn = pc.(*net.UDPConn)
		if err := joinGroup(conn, iface, addr); err != nil {
			// Non-fatal: see spec.md §4.5 and §7 (Configuration errors).
			return &Socket{Conn: conn, Addr: addr}, fmt.Errorf("multicast: join warning: %w", err)
		}
	case Output:
		d := net.Dialer{Control: setReuseAndLinger}
		c, err := d.DialContext(ctx, "udp", addr.String())
		if err != nil {
			return nil, fmt.Errorf("multicast: dial %s: %w", addr, err)
		}
		conn = c.(*net.UDPConn)
		if err := setOutputOptions(conn, iface, addr, cfg.TTL); err != nil {
			return &Socket{Conn: conn, Addr: addr}, fmt.Errorf("multicast: output options warning: %w", err)
		}
		if cfg.PassiveJoin {
			if err := joinGroup(conn, iface, addr); err != nil {
				return &Socket{Conn: conn, Addr: addr}, fmt.Errorf("multicast: passive join warning: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("multicast: unknown direction %v", cfg.Direction)
	}

	return &Socket{Conn: conn, Addr: addr}, nil
}

func joinGroup(conn *net.UDPConn, iface *net.Interface, addr *net.UDPAddr) error {
	if addr.IP.To4() != nil {
		p := ipv4.NewPacketConn(conn)
		return p.JoinGroup(iface, &net.UDPAddr{IP: addr.IP})
	}
	p := ipv6.NewPacketConn(conn)
	return p.JoinGroup(iface, &net.UDPAddr{IP: addr.IP})
}

func setOutputOptions(conn *net.UDPConn, iface *net.Interface, addr *net.UDPAddr, ttl int) error {
	if addr.IP.To4() != nil {
		p := ipv4.NewPacketConn(conn)
		if iface != nil {
			if err := p.SetMulticastInterface(iface); err != nil {
				return err
			}
		}
		if ttl > 0 {
			if err := p.SetMulticastTTL(ttl); err != nil {
				return err
			}
		}
		return p.SetMulticastLoopback(true)
	}
	p := ipv6.NewPacketConn(conn)
	if iface != nil {
		if err := p.SetMulticastInterface(iface); err != nil {
			return err
		}
	}
	if ttl > 0 {
		if err := p.SetMulticastHopLimit(ttl); err != nil {
			return err
		}
	}
	return p.SetMulticastLoopback(true)
}

// setReuseAndLinger is the net.ListenConfig.Control hook that sets
// SO_REUSEPORT, SO_REUSEADDR, and SO_LINGER={off,0}, unconditionally, on
// every multicast socket this package opens.
func setReuseAndLinger(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
			sockErr = e
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
			sockErr = e
			return
		}
		linger := unix.Linger{Onoff: 0, Linger: 0}
		if e := unix.SetsockoptLinger(int(fd), unix.SOL_SOCKET, unix.SO_LINGER, &linger); e != nil {
			sockErr = e
			return
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
