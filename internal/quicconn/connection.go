// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package quicconn is the QUIC Connection Engine (C8): it owns the QUIC
// connection handle, the UDP socket, the event loop, streams, the 0-RTT
// attempt, migration, and the wiring of the uTLS configurator, the BBRv2
// controller, the burst buffer and the FEC shim. Apart from fingerprint's
// use of *quic.Config in ApplyZeroRTTExtensions, it is the only package
// that imports the wire library (quic-go), and the only one that opens a
// raw network socket.
package quicconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	quic "github.com/quic-go/quic-go"
	"github.com/xmidt-org/eventor"
	"github.com/xmidt-org/retry"
	"go.uber.org/zap"

	"github.com/Christopher-Schulze/quicfuscate/internal/burst"
	"github.com/Christopher-Schulze/quicfuscate/internal/congestion"
	"github.com/Christopher-Schulze/quicfuscate/internal/fec"
	"github.com/Christopher-Schulze/quicfuscate/internal/fingerprint"
	"github.com/Christopher-Schulze/quicfuscate/internal/quicconn/event"
	"github.com/Christopher-Schulze/quicfuscate/internal/quicconn/netiface"
	"github.com/Christopher-Schulze/quicfuscate/internal/tickets"
)

// ConnectionStats is the read-copy snapshot returned by GetStats.
type ConnectionStats struct {
	Established    bool
	RemoteAddr     string
	LocalInterface string
	StreamsOpened  int
	BytesSent      uint64
	BytesReceived  uint64
	Migrations     int
	BBR            congestion.Snapshot
	Burst          burst.Metrics
	FECRedundancy  float64
	ZeroRTTUsed    bool
}

// Connection owns a QUIC connection across its whole lifecycle: dial,
// stream multiplexing, datagrams, migration and teardown. The state is
// partitioned into disjoint cells per §5: socketMu guards the UDP
// transport and endpoint bookkeeping, ccMu/burstMu are delegated to the
// BBRv2 controller's and Burst Buffer's own mutexes, statsMu guards the
// small stats counters that don't already live behind one of those. The
// connection task holds at most one of these at a time; lock order when
// more than one is needed is socket -> cc -> burst -> stats.
type Connection struct {
	// construction-time configuration, set by Option
	fingerprintID  fingerprint.Identifier
	useUTLS        bool
	verifyPeer     bool
	caTrust        *tls.Config
	connectTimeout time.Duration
	log            *zap.Logger
	nowFunc        func() time.Time

	retryPolicyFactory retry.PolicyFactory

	tickets      *tickets.Store
	configurator *fingerprint.Configurator
	quicConfig   *quic.Config

	migrationEnabled    bool
	preferredInterface  string

	fecEnabled    bool
	fecDataShards int

	zeroRTTEnabled  bool
	zeroRTT         fingerprint.ZeroRTTConfig
	rejectIfNoToken bool

	bbrEnabled bool
	bbrParams  congestion.Params

	burstEnabled bool
	burstConfig  burst.Config

	onConnect    eventor.Eventor[event.ConnectListener]
	onDisconnect eventor.Eventor[event.DisconnectListener]
	onMigration  eventor.Eventor[event.MigrationListener]

	// socketMu guards the UDP transport, the active QUIC connection
	// handle, the endpoint/rollback bookkeeping and the network-interface
	// watcher. Only the connection's own goroutine touches qconn directly;
	// everything else goes through methods that take socketMu.
	socketMu     sync.Mutex
	transport    *quic.Transport
	qconn        *quic.Conn
	remoteHost   string
	remotePort   int
	activeIface  string
	rollback     []rollbackEndpoint
	netsvc       netiface.NetworkServicer

	statsMu       sync.Mutex
	established   bool
	streamCounter uint64
	bytesSent     uint64
	bytesReceived uint64
	migrations    int
	zeroRTTUsed   bool

	bbr   *congestion.Controller
	burst *burst.Buffer
	fec   *fec.Shim

	packetsSinceFECUpdate int

	connectOnce sync.Once
	connectDone chan error

	shutdown chan struct{}
	wg       sync.WaitGroup
}

type rollbackEndpoint struct {
	iface string
}

// New constructs a Connection from the given options. It always returns a
// usable value on success; per §4.1's failure philosophy, recoverable
// misconfiguration degrades (falls back) rather than aborting construction
// outright -- only a handful of structural options are validated here.
func New(opts ...Option) (*Connection, error) {
	c := &Connection{
		connectTimeout: 15 * time.Second,
		log:            zap.NewNop(),
		nowFunc:        time.Now,
		useUTLS:        true,
		fecDataShards:  16,
		bbrParams:      congestion.DefaultParams(),
		burstConfig:    burst.DefaultConfig(),
		zeroRTT:        fingerprint.DefaultZeroRTTConfig(),
		connectDone:    make(chan error, 1),
		shutdown:       make(chan struct{}),
	}

	opts = append(opts,
		validateNowFunc(),
		validateLogger(),
		validateConnectTimeout(),
		validateRetryPolicy(),
	)

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(c); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMisconfigured, err)
		}
	}

	if c.configurator == nil {
		c.configurator = fingerprint.New(
			fingerprint.WithLogger(c.log),
			fingerprint.WithTicketStore(c.tickets),
		)
	}

	if c.bbrEnabled {
		c.bbr = congestion.New(c.bbrParams)
	}
	if c.burstEnabled {
		c.burst = burst.New(burst.WithConfig(c.burstConfig))
	}
	if c.fecEnabled {
		c.fec = fec.New(c.fecDataShards, fec.MinRedundancy)
	}
	if c.migrationEnabled {
		c.netsvc = netiface.New(netiface.NewNetworkWrapper(), preferredFirst(c.preferredInterface))
	}

	return c, nil
}

func preferredFirst(name string) []string {
	if name == "" {
		return nil
	}
	return []string{name}
}

// GetStats returns a read-copy snapshot of the connection's current state.
func (c *Connection) GetStats() ConnectionStats {
	c.statsMu.Lock()
	stats := ConnectionStats{
		Established:   c.established,
		StreamsOpened: int(c.streamCounter),
		BytesSent:     c.bytesSent,
		BytesReceived: c.bytesReceived,
		Migrations:    c.migrations,
		ZeroRTTUsed:   c.zeroRTTUsed,
	}
	c.statsMu.Unlock()

	c.socketMu.Lock()
	stats.RemoteAddr = fmt.Sprintf("%s:%d", c.remoteHost, c.remotePort)
	stats.LocalInterface = c.activeIface
	c.socketMu.Unlock()

	if c.bbr != nil {
		stats.BBR = c.bbr.Snapshot()
	}
	if c.burst != nil {
		stats.Burst = c.burst.Metrics()
	}
	if c.fec != nil {
		stats.FECRedundancy = c.fec.Redundancy()
	}

	return stats
}

// EnableBBR toggles the BBRv2 controller on or off for an already built
// connection (e.g. re-enabling after a diagnostic disablement); the
// controller is created lazily on first enable.
func (c *Connection) EnableBBR(enabled bool) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.bbrEnabled = enabled
	if enabled && c.bbr == nil {
		c.bbr = congestion.New(c.bbrParams)
	}
}

func (c *Connection) SetBBRParams(p congestion.Params) {
	c.statsMu.Lock()
	c.bbrParams = p
	bbr := c.bbr
	c.statsMu.Unlock()
	if bbr != nil {
		bbr.SetParams(p)
	}
}

func (c *Connection) GetBBRParams() congestion.Params {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.bbrParams
}

// EnableFEC toggles the FEC shim, constructing it lazily on first enable.
func (c *Connection) EnableFEC(enabled bool) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.fecEnabled = enabled
	if enabled && c.fec == nil {
		c.fec = fec.New(c.fecDataShards, fec.MinRedundancy)
	}
}

// SetFECRedundancyRate clamps r into [0.1, 0.5] per §4.6.
func (c *Connection) SetFECRedundancyRate(r float64) error {
	if c.fec == nil {
		return fmt.Errorf("%w: fec not enabled", ErrConfig)
	}
	c.fec.UpdateObservedLoss(r)
	return nil
}

// UpdateFECRedundancyRate recomputes the redundancy rate from observed
// loss, per the cadence enforced by the shim itself (every 50 packets).
func (c *Connection) UpdateFECRedundancyRate(observedLoss float64) {
	if c.fec != nil {
		c.fec.UpdateObservedLoss(observedLoss)
	}
}

// EnableZeroRTT toggles whether AsyncConnect attempts 0-RTT resumption.
func (c *Connection) EnableZeroRTT(enabled bool) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.zeroRTTEnabled = enabled
}

func (c *Connection) SetZeroRTTConfig(cfg fingerprint.ZeroRTTConfig) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.zeroRTT = cfg
}

// SendDatagram sends bytes over the unreliable datagram path, optionally
// FEC-encoded.
func (c *Connection) SendDatagram(b []byte) error {
	c.socketMu.Lock()
	qconn := c.qconn
	c.socketMu.Unlock()

	if qconn == nil {
		return ErrNotConnected
	}

	if c.fec != nil {
		shards, err := c.fec.Encode(b)
		if err != nil {
			return fmt.Errorf("%w: fec encode: %s", ErrProtocol, err)
		}
		for _, s := range shards {
			if err := qconn.SendDatagram(s); err != nil {
				return fmt.Errorf("%w: %s", ErrTransport, err)
			}
		}
		c.trackSent(len(b))
		return nil
	}

	if err := qconn.SendDatagram(b); err != nil {
		return fmt.Errorf("%w: %s", ErrTransport, err)
	}
	c.trackSent(len(b))
	return nil
}

// SendDatagramBurst appends data to the burst buffer unless urgent or
// burst buffering is disabled, in which case it is sent directly, per
// §4.6.
func (c *Connection) SendDatagramBurst(b []byte, urgent bool) error {
	if urgent || c.burst == nil {
		return c.SendDatagram(b)
	}
	if !c.burst.AddData(b) {
		return fmt.Errorf("%w: burst buffer full", ErrTransport)
	}
	return nil
}

func (c *Connection) trackSent(n int) {
	c.statsMu.Lock()
	c.bytesSent += uint64(n)
	c.statsMu.Unlock()
}

func (c *Connection) trackReceived(n int) {
	c.statsMu.Lock()
	c.bytesReceived += uint64(n)
	c.statsMu.Unlock()
}
