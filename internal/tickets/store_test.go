// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package tickets

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_Store_PerHostEviction(t *testing.T) {
	assert := assert.New(t)

	s := New(MaxPerHost(2), RandSource(rand.New(rand.NewSource(1))))

	for i := 0; i < 5; i++ {
		s.Store("a.example", []byte{byte(i)}, "chrome_latest")
	}

	assert.Equal(2, s.Count())

	e := s.Get("a.example")
	assert.NotNil(e)
}

func Test_Store_Expiry(t *testing.T) {
	assert := assert.New(t)

	now := time.Unix(0, 0)
	s := New(NowFunc(func() time.Time { return now }), RandSource(rand.New(rand.NewSource(1))))

	s.Store("b.example", []byte("ticket"), "firefox_latest")
	assert.NotNil(s.Get("b.example"))

	now = now.Add(25 * time.Hour)
	assert.Nil(s.Get("b.example"), "default lifetime is 24h")
}

func Test_Store_TotalEvictionOldestFirst(t *testing.T) {
	assert := assert.New(t)

	s := New(MaxTotal(3), MaxPerHost(10), RandSource(rand.New(rand.NewSource(1))))

	s.Store("a.example", []byte("a"), "chrome_latest")
	s.Store("b.example", []byte("b"), "chrome_latest")
	s.Store("c.example", []byte("c"), "chrome_latest")

	// Repeatedly reading a.example must not grant it recency protection:
	// the global bound evicts strictly oldest-first.
	for i := 0; i < 5; i++ {
		assert.NotNil(s.Get("a.example"))
	}

	s.Store("d.example", []byte("d"), "chrome_latest")

	assert.Equal(3, s.Count())
	assert.Nil(s.Get("a.example"), "oldest ticket must be evicted despite recent reads")
	assert.NotNil(s.Get("d.example"))
}

func Test_Store_Remove(t *testing.T) {
	assert := assert.New(t)

	s := New()
	s.Store("c.example", []byte("x"), "safari_latest")
	assert.Equal(1, s.Count())

	s.Remove("c.example")
	assert.Equal(0, s.Count())
	assert.Nil(s.Get("c.example"))
}
