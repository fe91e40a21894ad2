// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package quicconn

import (
	"time"

	"github.com/xmidt-org/retry"
	"go.uber.org/zap"
)

func validateNowFunc() Option {
	return optionFunc(func(c *Connection) error {
		if c.nowFunc == nil {
			c.nowFunc = time.Now
		}
		return nil
	})
}

func validateLogger() Option {
	return optionFunc(func(c *Connection) error {
		if c.log == nil {
			c.log = zap.NewNop()
		}
		return nil
	})
}

func validateConnectTimeout() Option {
	return optionFunc(func(c *Connection) error {
		if c.connectTimeout <= 0 {
			c.connectTimeout = 15 * time.Second
		}
		return nil
	})
}

// validateRetryPolicy installs the default handshake-retry backoff
// (500ms initial, doubling, 1/3 jitter, capped at 10s) if the caller
// didn't supply one via RetryPolicy.
func validateRetryPolicy() Option {
	return optionFunc(func(c *Connection) error {
		if c.retryPolicyFactory == nil {
			c.retryPolicyFactory = &retry.Config{
				Interval:    500 * time.Millisecond,
				Multiplier:  2.0,
				Jitter:      1.0 / 3.0,
				MaxInterval: 10 * time.Second,
			}
		}
		return nil
	})
}
