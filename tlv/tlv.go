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

// Package tlv implements the type-length-value status/command wire
// protocol: a stream of type:u8,len:u8,value:len-byte items terminated by
// a type=0 EOL marker, plus the single-byte response/command prefix and
// per-tag delta compression used by the status service.
package tlv

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
)

// Item is one decoded or to-be-encoded TLV field.
type Item struct {
	Tag   Tag
	Value []byte
}

// PacketKind is the single prefix byte on every status/command datagram.
type PacketKind byte

const (
	KindStatus  PacketKind = 0
	KindCommand PacketKind = 1
)

// EncodeEOL appends the EOL marker.
func EncodeEOL(buf []byte) []byte {
	return append(buf, byte(EOL))
}

// EncodeUint encodes x as a big-endian integer with leading zero bytes
// suppressed; x==0 encodes with len=0.
func EncodeUint(buf []byte, tag Tag, x uint64) []byte {
	var full [8]byte
	binary.BigEndian.PutUint64(full[:], x)
	i := 0
	for i < 7 && full[i] == 0 {
		i++
	}
	if x == 0 {
		i = 8
	}
	value := full[i:]
	buf = append(buf, byte(tag), byte(len(value)))
	return append(buf, value...)
}

// EncodeInt encodes a signed integer through the same path as EncodeUint;
// negative values are stored two's-complement in 8 bytes (no leading-zero
// suppression is possible since the high byte is nonzero), matching the
// source's encode_int64.
func EncodeInt(buf []byte, tag Tag, x int64) []byte {
	return EncodeUint(buf, tag, uint64(x))
}

// EncodeBool encodes a boolean as a 0/1 integer.
func EncodeBool(buf []byte, tag Tag, b bool) []byte {
	if b {
		return EncodeUint(buf, tag, 1)
	}
	return EncodeUint(buf, tag, 0)
}

// EncodeFloat32 encodes x's IEEE-754 bit pattern through the integer path.
func EncodeFloat32(buf []byte, tag Tag, x float32) []byte {
	return EncodeUint(buf, tag, uint64(math.Float32bits(x)))
}

// EncodeFloat64 encodes x's IEEE-754 bit pattern through the integer path.
func EncodeFloat64(buf []byte, tag Tag, x float64) []byte {
	return EncodeUint(buf, tag, math.Float64bits(x))
}

// EncodeString encodes s as raw bytes, truncated to 255 bytes.
func EncodeString(buf []byte, tag Tag, s string) []byte {
	if len(s) > 255 {
		s = s[:255]
	}
	buf = append(buf, byte(tag), byte(len(s)))
	return append(buf, s...)
}

// EncodeSocket encodes a UDP socket identity. IPv4 sockets are 6 bytes
// (4-byte address + 2-byte port). IPv6 sockets are 10 bytes: the first 8
// bytes of the 16-byte address plus the 2-byte port. This truncation is a
// known limitation carried from the source format; see DESIGN.md for the
// resolution of the open question around extending it.
func EncodeSocket(buf []byte, tag Tag, addr *net.UDPAddr) []byte {
	if addr == nil {
		buf = append(buf, byte(tag), 0)
		return buf
	}
	if ip4 := addr.IP.To4(); ip4 != nil {
		value := make([]byte, 6)
		copy(value[0:4], ip4)
		binary.BigEndian.PutUint16(value[4:6], uint16(addr.Port))
		buf = append(buf, byte(tag), byte(len(value)))
		return append(buf, value...)
	}
	ip16 := addr.IP.To16()
	value := make([]byte, 10)
	copy(value[0:8], ip16[0:8])
	binary.BigEndian.PutUint16(value[8:10], uint16(addr.Port))
	buf = append(buf, byte(tag), byte(len(value)))
	return append(buf, value...)
}

// Decode parses a TLV stream, stopping at EOL, end of buffer, or an
// invalid trailing length (a length byte claiming more bytes than remain,
// per spec.md §4.6 and §7: "short buffer -> stop"). Unknown tags are kept
// as opaque Items so callers can still skip or forward them; it is the
// caller's responsibility to ignore tags it doesn't recognize.
func Decode(buf []byte) ([]Item, error) {
	var items []Item
	for len(buf) > 0 {
		tag := Tag(buf[0])
		if tag == EOL {
			return items, nil
		}
		if len(buf) < 2 {
			return items, nil // short buffer: stop, per §7
		}
		length := int(buf[1])
		if len(buf) < 2+length {
			return items, nil // invalid trailing length: stop, per §7
		}
		value := make([]byte, length)
		copy(value, buf[2:2+length])
		items = append(items, Item{Tag: tag, Value: value})
		buf = buf[2+length:]
	}
	return items, nil
}

// Uint decodes an Item's value as a big-endian unsigned integer.
func (it Item) Uint() uint64 {
	var x uint64
	for _, b := range it.Value {
		x = (x << 8) | uint64(b)
	}
	return x
}

// Int decodes an Item's value as a signed integer, sign-extending from an
// 8-byte two's-complement representation when the value is 8 bytes wide,
// and treating anything shorter as unsigned (matching the source, which
// never suppresses the sign byte of a negative number).
func (it Item) Int() int64 {
	if len(it.Value) == 8 {
		return int64(it.Uint())
	}
	return int64(it.Uint())
}

// Float32 decodes an Item's value as an IEEE-754 single.
func (it Item) Float32() float32 {
	return math.Float32frombits(uint32(it.Uint()))
}

// Float64 decodes an Item's value as an IEEE-754 double.
func (it Item) Float64() float64 {
	return math.Float64frombits(it.Uint())
}

// Bool decodes an Item's value as a boolean integer.
func (it Item) Bool() bool {
	return it.Uint() != 0
}

// String decodes an Item's value as a raw string.
func (it Item) String() string {
	return string(it.Value)
}

// Socket decodes an Item's value as a UDP socket identity, per the
// 6-byte/10-byte encoding documented on EncodeSocket.
func (it Item) Socket() (*net.UDPAddr, error) {
	switch len(it.Value) {
	case 6:
		ip := net.IPv4(it.Value[0], it.Value[1], it.Value[2], it.Value[3])
		port := binary.BigEndian.Uint16(it.Value[4:6])
		return &net.UDPAddr{IP: ip, Port: int(port)}, nil
	case 10:
		ip := make(net.IP, 16)
		copy(ip[0:8], it.Value[0:8])
		port := binary.BigEndian.Uint16(it.Value[8:10])
		return &net.UDPAddr{IP: ip, Port: int(port)}, nil
	case 0:
		return nil, nil
	default:
		return nil, fmt.Errorf("tlv: socket item has unexpected length %d", len(it.Value))
	}
}

// EncodePacket prepends the single C/R prefix byte to an already-encoded
// (EOL-terminated) TLV body.
func EncodePacket(kind PacketKind, body []byte) []byte {
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(kind))
	return append(out, body...)
}

// DecodePacket splits the prefix byte from the TLV body and decodes it.
func DecodePacket(buf []byte) (PacketKind, []Item, error) {
	if len(buf) < 1 {
		return 0, nil, fmt.Errorf("tlv: empty packet")
	}
	items, err := Decode(buf[1:])
	return PacketKind(buf[0]), items, err
}
