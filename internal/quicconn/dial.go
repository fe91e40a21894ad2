// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package quicconn

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	quic "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/Christopher-Schulze/quicfuscate/internal/quicconn/event"
)

const scidMarker = "qfuscat_"

// AsyncConnect resolves host:port, constructs the initial QUIC packet(s)
// with the chosen fingerprint's SNI, sends them, and starts the recv
// loop. cb is invoked exactly once, on first handshake completion or on
// terminal failure, per §5's single-fire ordering guarantee.
func (c *Connection) AsyncConnect(ctx context.Context, host string, port int, cb func(error)) error {
	c.socketMu.Lock()
	c.remoteHost = host
	c.remotePort = port
	c.socketMu.Unlock()

	go c.connect(ctx, host, port, cb)
	return nil
}

func (c *Connection) connect(ctx context.Context, host string, port int, cb func(error)) {
	started := c.nowFunc()
	correlationID := uuid.NewString()

	fire := func(err error) {
		c.connectOnce.Do(func() {
			c.connectDone <- err
			if cb != nil {
				cb(err)
			}
			c.onConnect.Visit(func(l event.ConnectListener) {
				l.OnConnect(event.Connect{
					Started:       started,
					At:            c.nowFunc(),
					Success:       err == nil,
					Err:           err,
					CorrelationID: correlationID,
				})
			})
		})
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	if _, err := net.ResolveUDPAddr("udp", addr); err != nil {
		fire(fmt.Errorf("%w: %s", ErrResolution, err))
		return
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	qconn, iface, err := c.handshakeWithRetry(connectCtx, host, port, correlationID)
	if err != nil {
		fire(err)
		return
	}

	c.socketMu.Lock()
	c.qconn = qconn
	c.activeIface = iface
	c.socketMu.Unlock()

	c.statsMu.Lock()
	c.established = true
	c.statsMu.Unlock()

	if c.burst != nil {
		c.burst.SetDataHandler(func(frame []byte) {
			if err := c.SendDatagram(frame); err != nil {
				c.log.Debug("burst frame send failed", zap.Error(err))
			}
		})
		c.burst.Start()
	}

	if c.migrationEnabled {
		c.wg.Add(1)
		go c.migrationWatcher()
	}

	c.wg.Add(1)
	go c.recvLoop(qconn)

	fire(nil)
}

// handshakeWithRetry calls handshake repeatedly, backing off between
// attempts per c.retryPolicyFactory, until it succeeds or connectCtx
// expires. Resolution failures are not retried (the address is already
// known invalid); transport and handshake errors are, since a transient
// middlebox drop or a congested path often clears on the next attempt.
func (c *Connection) handshakeWithRetry(connectCtx context.Context, host string, port int, correlationID string) (*quic.Conn, string, error) {
	policy := c.retryPolicyFactory.NewPolicy(connectCtx)

	for attempt := 1; ; attempt++ {
		qconn, iface, err := c.handshake(connectCtx, host, port)
		if err == nil {
			return qconn, iface, nil
		}
		if errors.Is(err, ErrResolution) {
			return nil, "", err
		}

		next, ok := policy.Next()
		if !ok || connectCtx.Err() != nil {
			return nil, "", err
		}

		c.log.Debug("handshake attempt failed, retrying",
			zap.String("correlation_id", correlationID),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)

		select {
		case <-time.After(next):
		case <-connectCtx.Done():
			return nil, "", err
		}
	}
}

// handshake builds the SCID, configures uTLS (falling back through
// progressively weaker arguments on failure, per §4.6 step 4) and dials.
func (c *Connection) handshake(ctx context.Context, host string, port int) (*quic.Conn, string, error) {
	tlsCfg, quicCfg, err := c.buildConfigs(host)
	if err != nil {
		c.log.Warn("fingerprint configuration failed, using wire library defaults", zap.Error(err))
		tlsCfg, quicCfg = nil, withSCID(&quic.Config{})
	}

	udpConn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrTransport, err)
	}

	tr := &quic.Transport{Conn: udpConn}
	c.socketMu.Lock()
	c.transport = tr
	c.socketMu.Unlock()

	remoteAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		_ = udpConn.Close()
		return nil, "", fmt.Errorf("%w: %s", ErrResolution, err)
	}

	qconn, err := tr.DialEarly(ctx, remoteAddr, tlsCfg, quicCfg)
	if err != nil {
		// Fallback 1: drop our derived TLS config, use a minimal one.
		qconn, err = tr.DialEarly(ctx, remoteAddr, &minimalTLSConfig, withSCID(&quic.Config{}))
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrHandshake, err)
	}

	return qconn, localInterfaceName(udpConn), nil
}

// withSCID returns cfg with its ConnectionIDGenerator set to mint every
// SCID with the scidMarker prefix (§4.6 step 2). cfg is mutated in place;
// callers always pass a config they own exclusively.
func withSCID(cfg *quic.Config) *quic.Config {
	cfg.ConnectionIDGenerator = scidGenerator{}
	return cfg
}

// scidGenerator implements quic.ConnectionIDGenerator so every connection
// ID the wire library requests -- not just the first -- carries the
// marker prefix.
type scidGenerator struct{}

func (scidGenerator) GenerateConnectionID() (quic.ConnectionID, error) {
	return quic.ConnectionIDFromBytes(generateSCID()), nil
}

func (scidGenerator) ConnectionIDLen() int {
	return len(scidMarker) + 12
}

func (c *Connection) buildConfigs(hostname string) (*tls.Config, *quic.Config, error) {
	if !c.useUTLS {
		return nil, withSCID(&quic.Config{}), nil
	}

	if err := c.configurator.Initialize(c.fingerprintID, hostname, c.caTrust, c.tickets != nil); err != nil {
		return nil, nil, err
	}

	profile, err := c.configurator.CurrentProfile()
	if err != nil {
		return nil, nil, err
	}

	quicCfg := c.quicConfig
	if quicCfg == nil {
		quicCfg = &quic.Config{MaxIdleTimeout: 30 * time.Second}
	} else {
		cp := *quicCfg
		quicCfg = &cp
	}
	quicCfg = withSCID(quicCfg)

	if c.zeroRTTEnabled {
		if err := c.configurator.ApplyZeroRTTExtensions(quicCfg, c.fingerprintID); err != nil {
			c.log.Debug("zero-rtt extensions not applied", zap.Error(err))
		} else if _, ok := c.attemptZeroRTT(hostname); ok {
			c.statsMu.Lock()
			c.zeroRTTUsed = true
			c.statsMu.Unlock()
		}
	}

	tlsCfg := stdTLSConfigFrom(profile, hostname, c.caTrust, c.verifyPeer)
	return tlsCfg, quicCfg, nil
}

var minimalTLSConfig = tls.Config{InsecureSkipVerify: true}

// CreateStream allocates a client-initiated bidirectional stream, subject
// to the wire library's capacity check.
func (c *Connection) CreateStream() (Stream, error) {
	c.socketMu.Lock()
	qconn := c.qconn
	c.socketMu.Unlock()

	if qconn == nil {
		return nil, ErrNotConnected
	}

	qs, err := qconn.OpenStream()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProtocol, err)
	}

	c.statsMu.Lock()
	c.streamCounter++
	c.statsMu.Unlock()

	return newStream(c, qs, Bidi), nil
}

// Disconnect emits CONNECTION_CLOSE, stops all background tasks and tears
// the connection down. It may be called at most effectively once; later
// calls are no-ops.
func (c *Connection) Disconnect(errorCode uint64) error {
	select {
	case <-c.shutdown:
		return nil
	default:
		close(c.shutdown)
	}

	if c.burst != nil {
		c.burst.Stop()
	}

	c.socketMu.Lock()
	qconn := c.qconn
	tr := c.transport
	c.socketMu.Unlock()

	var err error
	if qconn != nil {
		err = qconn.CloseWithError(quic.ApplicationErrorCode(errorCode), "disconnect")
	}
	if tr != nil {
		_ = tr.Close()
	}

	c.wg.Wait()

	c.onDisconnect.Visit(func(l event.DisconnectListener) {
		l.OnDisconnect(event.Disconnect{At: c.nowFunc(), Err: err})
	})

	return err
}

func (c *Connection) recvLoop(qconn *quic.Conn) {
	defer c.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-c.shutdown
		cancel()
	}()
	defer cancel()

	for {
		b, err := qconn.ReceiveDatagram(ctx)
		if err != nil {
			return
		}

		c.trackReceived(len(b))

		if c.fec != nil {
			if recovered, ok, err := c.fec.AddReceivedPacket(b); err == nil && ok {
				b = recovered
			}
		}

		c.packetsSinceFECUpdate++
		if c.fec != nil && c.packetsSinceFECUpdate >= 50 {
			c.packetsSinceFECUpdate = 0
		}
	}
}

func (c *Connection) migrationWatcher() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			if c.netsvc == nil {
				continue
			}
			changed, err := c.netsvc.Changed()
			if err != nil || !changed {
				continue
			}
			_ = c.InitiateMigration()
		}
	}
}

func generateSCID() []byte {
	id := make([]byte, 0, 20)
	id = append(id, []byte(scidMarker)...)
	suffix := make([]byte, 12)
	_, _ = rand.Read(suffix)
	return append(id, suffix...)
}

func localInterfaceName(conn *net.UDPConn) string {
	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipNet, ok := a.(*net.IPNet); ok && ipNet.IP.Equal(local.IP) {
				return iface.Name
			}
		}
	}
	return ""
}
