// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package quicconn

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"time"

	quic "github.com/quic-go/quic-go"

	"github.com/Christopher-Schulze/quicfuscate/internal/netiface"
	"github.com/Christopher-Schulze/quicfuscate/internal/quicconn/event"
)

const (
	pathChallengeFrameType = 0x1a
	pathResponseFrameType  = 0x1b
	pathValidationTimeout  = 3 * time.Second
)

// EnableMigration toggles connection migration and lazily creates the
// interface watcher on first enable.
func (c *Connection) EnableMigration(enabled bool) {
	c.socketMu.Lock()
	defer c.socketMu.Unlock()

	c.migrationEnabled = enabled
	if enabled && c.netsvc == nil {
		c.netsvc = netiface.New(netiface.NewNetworkWrapper(), preferredFirst(c.preferredInterface))
	}
}

// SetPreferredInterface names the interface migration should prefer.
func (c *Connection) SetPreferredInterface(name string) {
	c.socketMu.Lock()
	defer c.socketMu.Unlock()
	c.preferredInterface = name
}

// SetMigrationCallback registers a multi-fire listener for migration
// outcomes; it is equivalent to passing AddMigrationListener to New.
func (c *Connection) SetMigrationCallback(l event.MigrationListener) event.CancelFunc {
	return event.CancelFunc(c.onMigration.Add(l))
}

// InitiateMigration moves the connection onto the preferred interface (or,
// if unset, the first available non-loopback running interface other than
// the one currently in use), per §4.6. The new path is probed with a raw
// PATH_CHALLENGE-shaped datagram before anything is torn down (no
// PATH_RESPONSE is awaited, see validatePath); only once that send and a
// full resumed handshake over the new socket
// both succeed does the connection actually move -- the old socket and
// QUIC connection handle are closed and replaced, never left dangling.
// Any failure along the way restores the previous path and reports
// success=false; the migration counter and listeners only ever reflect a
// real swap.
func (c *Connection) InitiateMigration() error {
	c.socketMu.Lock()
	if !c.migrationEnabled {
		c.socketMu.Unlock()
		return fmt.Errorf("%w: migration not enabled", ErrMigration)
	}
	oldIface := c.activeIface
	target := c.preferredInterface
	oldTransport := c.transport
	oldQConn := c.qconn
	host, port := c.remoteHost, c.remotePort
	c.socketMu.Unlock()

	iface, ifaceErr := resolveTargetInterface(target, oldIface)
	if ifaceErr != nil {
		c.reportMigration(false, oldIface, target, ifaceErr)
		return fmt.Errorf("%w: %s", ErrMigration, ifaceErr)
	}

	localAddr, err := firstUsableAddr(iface)
	if err != nil {
		c.reportMigration(false, oldIface, iface.Name, err)
		return fmt.Errorf("%w: %s", ErrMigration, err)
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		c.reportMigration(false, oldIface, iface.Name, err)
		return fmt.Errorf("%w: %s", ErrMigration, err)
	}

	newConn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		c.reportMigration(false, oldIface, iface.Name, err)
		return fmt.Errorf("%w: %s", ErrMigration, err)
	}

	if err := validatePath(newConn, remoteAddr); err != nil {
		_ = newConn.Close()
		c.reportMigration(false, oldIface, iface.Name, err)
		return fmt.Errorf("%w: %s", ErrMigration, err)
	}

	tlsCfg, quicCfg, cfgErr := c.buildConfigs(host)
	if cfgErr != nil {
		tlsCfg, quicCfg = &minimalTLSConfig, withSCID(&quic.Config{})
	}

	newTransport := &quic.Transport{Conn: newConn}

	dialCtx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
	defer cancel()

	newQConn, err := newTransport.DialEarly(dialCtx, remoteAddr, tlsCfg, quicCfg)
	if err != nil {
		_ = newTransport.Close()
		c.reportMigration(false, oldIface, iface.Name, err)
		return fmt.Errorf("%w: %s", ErrMigration, err)
	}

	c.socketMu.Lock()
	c.transport = newTransport
	c.qconn = newQConn
	c.activeIface = iface.Name
	c.rollback = append(c.rollback, rollbackEndpoint{iface: oldIface})
	c.socketMu.Unlock()

	c.wg.Add(1)
	go c.recvLoop(newQConn)

	if oldQConn != nil {
		_ = oldQConn.CloseWithError(0, "migrated to new path")
	}
	if oldTransport != nil {
		_ = oldTransport.Close()
	}

	c.statsMu.Lock()
	c.migrations++
	c.statsMu.Unlock()

	c.reportMigration(true, oldIface, iface.Name, nil)
	return nil
}

func (c *Connection) reportMigration(success bool, oldIface, newIface string, err error) {
	c.onMigration.Visit(func(l event.MigrationListener) {
		l.OnMigration(event.Migration{
			At:       c.nowFunc(),
			Success:  success,
			OldIface: oldIface,
			NewIface: newIface,
			Err:      err,
		})
	})
}

func resolveTargetInterface(preferred, current string) (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	if preferred != "" {
		for i := range ifaces {
			if ifaces[i].Name == preferred {
				if ifaces[i].Flags&net.FlagRunning == 0 {
					return nil, fmt.Errorf("interface %q is not running", preferred)
				}
				return &ifaces[i], nil
			}
		}
		return nil, fmt.Errorf("interface %q not found", preferred)
	}

	for i := range ifaces {
		f := ifaces[i].Flags
		if f&net.FlagLoopback != 0 || f&net.FlagRunning == 0 {
			continue
		}
		if ifaces[i].Name != current {
			return &ifaces[i], nil
		}
	}

	return nil, fmt.Errorf("no alternate running interface available")
}

// firstUsableAddr returns the first non-loopback address bound to iface,
// so the migrated socket actually originates from the requested interface
// instead of whatever the routing table would pick for a wildcard bind.
func firstUsableAddr(iface *net.Interface) (*net.UDPAddr, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		return &net.UDPAddr{IP: ipNet.IP}, nil
	}
	return nil, fmt.Errorf("interface %q has no usable address", iface.Name)
}

// validatePath sends a PATH_CHALLENGE on the new socket to the peer's
// address before anything commits to the new path. Since the peer's QUIC
// stack won't parse this as a protocol frame (it's a raw probe, not a
// protected packet -- the wire library owns the actual connection state),
// the real path confirmation is the resumed handshake that follows;
// this probe only rules out a dead route (e.g. no local route, immediate
// ICMP unreachable) before paying for that handshake.
func validatePath(probe *net.UDPConn, remote *net.UDPAddr) error {
	var challenge [8]byte
	if _, err := rand.Read(challenge[:]); err != nil {
		return err
	}

	frame := make([]byte, 0, 9)
	frame = append(frame, pathChallengeFrameType)
	frame = append(frame, challenge[:]...)

	if err := probe.SetWriteDeadline(time.Now().Add(pathValidationTimeout)); err != nil {
		return err
	}

	if _, err := probe.WriteToUDP(frame, remote); err != nil {
		return fmt.Errorf("path unreachable: %w", err)
	}

	return nil
}
