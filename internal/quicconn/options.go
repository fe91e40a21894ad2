// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package quicconn

import (
	"crypto/tls"
	"time"

	quic "github.com/quic-go/quic-go"
	"github.com/xmidt-org/retry"
	"go.uber.org/zap"

	"github.com/Christopher-Schulze/quicfuscate/internal/burst"
	"github.com/Christopher-Schulze/quicfuscate/internal/congestion"
	"github.com/Christopher-Schulze/quicfuscate/internal/fingerprint"
	"github.com/Christopher-Schulze/quicfuscate/internal/quicconn/event"
	"github.com/Christopher-Schulze/quicfuscate/internal/tickets"
)

// Option configures a Connection at construction, following the same
// functional-options shape used throughout this module.
type Option interface {
	apply(*Connection) error
}

type optionFunc func(*Connection) error

func (f optionFunc) apply(c *Connection) error { return f(c) }

func Fingerprint(id fingerprint.Identifier) Option {
	return optionFunc(func(c *Connection) error {
		c.fingerprintID = id
		return nil
	})
}

func UseUTLS(enabled bool) Option {
	return optionFunc(func(c *Connection) error {
		c.useUTLS = enabled
		return nil
	})
}

func VerifyPeer(enabled bool) Option {
	return optionFunc(func(c *Connection) error {
		c.verifyPeer = enabled
		return nil
	})
}

func CAFile(tlsCfg *tls.Config) Option {
	return optionFunc(func(c *Connection) error {
		c.caTrust = tlsCfg
		return nil
	})
}

func ConnectTimeout(d time.Duration) Option {
	return optionFunc(func(c *Connection) error {
		c.connectTimeout = d
		return nil
	})
}

// RetryPolicy sets the backoff policy factory governing retries between
// failed handshake attempts within the connect timeout window. If unset,
// validateRetryPolicy installs a default exponential backoff.
func RetryPolicy(pf retry.PolicyFactory) Option {
	return optionFunc(func(c *Connection) error {
		c.retryPolicyFactory = pf
		return nil
	})
}

func Logger(l *zap.Logger) Option {
	return optionFunc(func(c *Connection) error {
		c.log = l
		return nil
	})
}

func NowFunc(f func() time.Time) Option {
	return optionFunc(func(c *Connection) error {
		c.nowFunc = f
		return nil
	})
}

func TicketStore(s *tickets.Store) Option {
	return optionFunc(func(c *Connection) error {
		c.tickets = s
		return nil
	})
}

func Configurator(cfg *fingerprint.Configurator) Option {
	return optionFunc(func(c *Connection) error {
		c.configurator = cfg
		return nil
	})
}

func QUICConfig(cfg *quic.Config) Option {
	return optionFunc(func(c *Connection) error {
		c.quicConfig = cfg
		return nil
	})
}

func EnableMigration(enabled bool) Option {
	return optionFunc(func(c *Connection) error {
		c.migrationEnabled = enabled
		return nil
	})
}

func PreferredInterface(name string) Option {
	return optionFunc(func(c *Connection) error {
		c.preferredInterface = name
		return nil
	})
}

func EnableFEC(enabled bool) Option {
	return optionFunc(func(c *Connection) error {
		c.fecEnabled = enabled
		return nil
	})
}

func FECDataShards(n int) Option {
	return optionFunc(func(c *Connection) error {
		c.fecDataShards = n
		return nil
	})
}

func EnableZeroRTT(enabled bool) Option {
	return optionFunc(func(c *Connection) error {
		c.zeroRTTEnabled = enabled
		return nil
	})
}

func ZeroRTTConfig(cfg fingerprint.ZeroRTTConfig) Option {
	return optionFunc(func(c *Connection) error {
		c.zeroRTT = cfg
		return nil
	})
}

func RejectIfNoToken(enabled bool) Option {
	return optionFunc(func(c *Connection) error {
		c.rejectIfNoToken = enabled
		return nil
	})
}

func EnableBBR(enabled bool) Option {
	return optionFunc(func(c *Connection) error {
		c.bbrEnabled = enabled
		return nil
	})
}

func BBRParams(p congestion.Params) Option {
	return optionFunc(func(c *Connection) error {
		c.bbrParams = p
		return nil
	})
}

func EnableBurst(enabled bool) Option {
	return optionFunc(func(c *Connection) error {
		c.burstEnabled = enabled
		return nil
	})
}

func BurstConfig(cfg burst.Config) Option {
	return optionFunc(func(c *Connection) error {
		c.burstConfig = cfg
		return nil
	})
}

func AddConnectListener(l event.ConnectListener, cancel ...*event.CancelFunc) Option {
	return optionFunc(func(c *Connection) error {
		cf := c.onConnect.Add(l)
		if len(cancel) > 0 {
			*cancel[0] = event.CancelFunc(cf)
		}
		return nil
	})
}

func AddDisconnectListener(l event.DisconnectListener, cancel ...*event.CancelFunc) Option {
	return optionFunc(func(c *Connection) error {
		cf := c.onDisconnect.Add(l)
		if len(cancel) > 0 {
			*cancel[0] = event.CancelFunc(cf)
		}
		return nil
	})
}

func AddMigrationListener(l event.MigrationListener, cancel ...*event.CancelFunc) Option {
	return optionFunc(func(c *Connection) error {
		cf := c.onMigration.Add(l)
		if len(cancel) > 0 {
			*cancel[0] = event.CancelFunc(cf)
		}
		return nil
	})
}
