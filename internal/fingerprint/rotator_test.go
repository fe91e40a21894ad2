// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Rotator_Sequential(t *testing.T) {
	assert := assert.New(t)

	r := NewRotator(
		WithStrategy(Sequential),
		WithCatalog([]Identifier{ChromeLatest, FirefoxLatest, SafariLatest}),
	)

	var got []Identifier
	for i := 0; i < 5; i++ {
		got = append(got, r.RotateToNext())
	}

	assert.Equal([]Identifier{FirefoxLatest, SafariLatest, ChromeLatest, FirefoxLatest, SafariLatest}, got)
}

func Test_Rotator_StartStop_NoTaskForRandom(t *testing.T) {
	r := NewRotator(WithStrategy(Random), WithCatalog([]Identifier{ChromeLatest, FirefoxLatest}))
	r.Start()
	r.Stop() // must return immediately; no task was launched
}

func Test_JA3_DiffersByProfile(t *testing.T) {
	assert := assert.New(t)

	chrome := Catalog()[ChromeLatest]
	firefox := Catalog()[FirefoxLatest]

	assert.NotEqual(JA3(chrome), JA3(firefox))
}
