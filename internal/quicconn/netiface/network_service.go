// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package netiface

import (
	"net"
	"sort"
	"strings"
)

// NetworkServicer enumerates the local interfaces usable for a migration
// candidate path, in priority order, and reports whether the active set has
// changed since the last poll.
type NetworkServicer interface {
	GetInterfaces() ([]net.Interface, error)
	GetInterfaceNames() ([]string, error)
	// Changed reports whether the currently running, non-loopback interface
	// set differs from the one observed on the previous call. The first
	// call always returns false, since there is nothing to compare against.
	Changed() (bool, error)
}

// NetworkService filters the OS interface list down to running,
// non-loopback interfaces, and orders the preferred ones first.
type NetworkService struct {
	N NetworkWrapper
	// Preferred lists interface names in the order they should be tried
	// during migration (e.g. wired before Wi-Fi before cellular). Names not
	// listed still appear, after the preferred ones, in OS-reported order.
	Preferred []string

	last []string
}

func New(n NetworkWrapper, preferred []string) NetworkServicer {
	return &NetworkService{
		N:         n,
		Preferred: preferred,
	}
}

// GetInterfaces returns the running, non-loopback interfaces, with any
// names in Preferred sorted to the front in the order given.
func (ns *NetworkService) GetInterfaces() ([]net.Interface, error) {
	ifaces, err := ns.N.Interfaces()
	if err != nil {
		return nil, err
	}

	var running []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagRunning == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		running = append(running, iface)
	}

	sort.SliceStable(running, func(i, j int) bool {
		return ns.priority(running[i].Name) < ns.priority(running[j].Name)
	})

	return running, nil
}

func (ns *NetworkService) GetInterfaceNames() ([]string, error) {
	ifaces, err := ns.GetInterfaces()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		names = append(names, iface.Name)
	}

	return names, nil
}

func (ns *NetworkService) Changed() (bool, error) {
	names, err := ns.GetInterfaceNames()
	if err != nil {
		return false, err
	}

	changed := ns.last != nil && !equalSet(ns.last, names)
	ns.last = names

	return changed, nil
}

func (ns *NetworkService) priority(name string) int {
	for i, n := range ns.Preferred {
		if strings.EqualFold(name, n) {
			return i
		}
	}

	return len(ns.Preferred) + 100
}

func equalSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	seen := make(map[string]int, len(a))
	for _, n := range a {
		seen[strings.ToLower(n)]++
	}
	for _, n := range b {
		seen[strings.ToLower(n)]--
	}
	for _, count := range seen {
		if count != 0 {
			return false
		}
	}

	return true
}
