// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package quicconn

import (
	"sync/atomic"

	quic "github.com/quic-go/quic-go"
)

// Direction is a stream's data-flow direction.
type Direction int

const (
	Bidi Direction = iota
	Uni
)

// Stream is the ownership wrapper around a *quic.Stream. It holds a plain
// pointer to the owning connection; Read and Write return ErrNotConnected
// only when that pointer is nil and otherwise go straight to the
// underlying stream, so they do not detect a disconnected connection.
type Stream interface {
	ID() quic.StreamID
	Direction() Direction
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	BytesSent() uint64
	BytesReceived() uint64
	Closed() bool
}

type stream struct {
	id       quic.StreamID
	dir      Direction
	qstream  *quic.Stream
	conn     *Connection
	sent     atomic.Uint64
	received atomic.Uint64
	closed   atomic.Bool
}

func newStream(c *Connection, qs *quic.Stream, dir Direction) *stream {
	return &stream{
		id:      qs.StreamID(),
		dir:     dir,
		qstream: qs,
		conn:    c,
	}
}

func (s *stream) ID() quic.StreamID     { return s.id }
func (s *stream) Direction() Direction  { return s.dir }
func (s *stream) Closed() bool          { return s.closed.Load() }
func (s *stream) BytesSent() uint64     { return s.sent.Load() }
func (s *stream) BytesReceived() uint64 { return s.received.Load() }

func (s *stream) Read(p []byte) (int, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}
	n, err := s.qstream.Read(p)
	s.received.Add(uint64(n))
	return n, err
}

func (s *stream) Write(p []byte) (int, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}
	n, err := s.qstream.Write(p)
	s.sent.Add(uint64(n))
	return n, err
}

func (s *stream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.qstream.Close()
}
