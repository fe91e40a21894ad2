// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package netiface

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockWrapper struct {
	ifaces []net.Interface
	err    error
}

func (m *mockWrapper) Interfaces() ([]net.Interface, error) {
	return m.ifaces, m.err
}

func (m *mockWrapper) DefaultInterface() (*net.Interface, error) {
	return nil, nil
}

func Test_NetworkService_GetInterfaces(t *testing.T) {
	tests := []struct {
		description string
		ifaces      []net.Interface
		preferred   []string
		want        []string
	}{
		{
			description: "filters loopback and down interfaces",
			ifaces: []net.Interface{
				{Name: "lo", Flags: net.FlagUp | net.FlagRunning | net.FlagLoopback},
				{Name: "eth0", Flags: net.FlagUp | net.FlagRunning},
				{Name: "wlan0", Flags: net.FlagUp},
			},
			want: []string{"eth0"},
		}, {
			description: "orders preferred interfaces first",
			ifaces: []net.Interface{
				{Name: "wlan0", Flags: net.FlagRunning},
				{Name: "eth0", Flags: net.FlagRunning},
			},
			preferred: []string{"wlan0", "eth0"},
			want:      []string{"wlan0", "eth0"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			assert := assert.New(t)
			ns := New(&mockWrapper{ifaces: tc.ifaces}, tc.preferred)

			names, err := ns.GetInterfaceNames()
			assert.NoError(err)
			assert.Equal(tc.want, names)
		})
	}
}

func Test_NetworkService_Changed(t *testing.T) {
	assert := assert.New(t)
	w := &mockWrapper{ifaces: []net.Interface{
		{Name: "eth0", Flags: net.FlagRunning},
	}}
	ns := New(w, nil)

	changed, err := ns.Changed()
	assert.NoError(err)
	assert.False(changed, "first observation has nothing to compare against")

	changed, err = ns.Changed()
	assert.NoError(err)
	assert.False(changed)

	w.ifaces = append(w.ifaces, net.Interface{Name: "wlan0", Flags: net.FlagRunning})
	changed, err = ns.Changed()
	assert.NoError(err)
	assert.True(changed, "a new running interface should be detected")
}
