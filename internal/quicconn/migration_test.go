// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package quicconn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Christopher-Schulze/quicfuscate/internal/quicconn/event"
)

// Test_InitiateMigration_NonexistentInterface verifies that a preferred
// interface which doesn't exist fails the migration, reports exactly one
// failed callback, and leaves the connection otherwise unaffected.
func Test_InitiateMigration_NonexistentInterface(t *testing.T) {
	assert := assert.New(t)

	c, err := New()
	assert.NoError(err)

	c.EnableMigration(true)
	c.SetPreferredInterface("eth1-does-not-exist")

	var got []event.Migration
	c.SetMigrationCallback(event.MigrationListenerFunc(func(m event.Migration) {
		got = append(got, m)
	}))

	err = c.InitiateMigration()
	assert.Error(err)

	assert.Len(got, 1)
	assert.False(got[0].Success)
}

func Test_InitiateMigration_Disabled(t *testing.T) {
	assert := assert.New(t)

	c, err := New()
	assert.NoError(err)

	err = c.InitiateMigration()
	assert.ErrorIs(err, ErrMigration)
}
