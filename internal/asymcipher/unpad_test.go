package asymcipher

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"
)

// encode builds 0x00 || 0x02 || PS || 0x00 || msg of length emLen.
func encode(t *testing.T, msg []byte, emLen int) []byte {
	t.Helper()
	psLen := emLen - len(msg) - 3
	if psLen < 0 {
		t.Fatalf("emLen %d too small for %d byte message", emLen, len(msg))
	}
	em := make([]byte, emLen)
	em[1] = 0x02
	ps := em[2 : 2+psLen]
	if _, err := rand.Read(ps); err != nil {
		t.Fatalf("rand: %v", err)
	}
	for i := range ps {
		if ps[i] == 0 {
			ps[i] = 0x5a
		}
	}
	copy(em[emLen-len(msg):], msg)
	return em
}

func randomMsg(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return b
}

func TestUnpadRoundTrip(t *testing.T) {
	for _, tc := range []struct{ msgLen, emLen int }{
		{48, 59},
		{48, 128},
		{48, 256},
		{48, 512},
		{1, 12},
		{0, 11},
		{100, 384},
	} {
		msg := randomMsg(t, tc.msgLen)
		em := encode(t, msg, tc.emLen)
		out := make([]byte, tc.msgLen)
		if unpadPKCS1v15(out, em) != 1 {
			t.Fatalf("msg=%d em=%d: valid encoding rejected", tc.msgLen, tc.emLen)
		}
		if !bytes.Equal(out, msg) {
			t.Fatalf("msg=%d em=%d: recovered %x, want %x", tc.msgLen, tc.emLen, out, msg)
		}
	}
}

func TestUnpadRejectsAndPreservesOutput(t *testing.T) {
	const emLen = 256
	msg := randomMsg(t, PMSLen)

	cases := map[string]func() ([]byte, int){
		"first byte": func() ([]byte, int) {
			em := encode(t, msg, emLen)
			em[0] = 0x01
			return em, PMSLen
		},
		"block type": func() ([]byte, int) {
			em := encode(t, msg, emLen)
			em[1] = 0x01
			return em, PMSLen
		},
		"short padding": func() ([]byte, int) {
			em := encode(t, msg, emLen)
			em[9] = 0x00
			return em, PMSLen
		},
		"no separator": func() ([]byte, int) {
			em := encode(t, msg, emLen)
			em[emLen-PMSLen-1] = 0x11
			for i := emLen - PMSLen; i < emLen; i++ {
				if em[i] == 0 {
					em[i] = 0x22
				}
			}
			return em, PMSLen
		},
		"longer message": func() ([]byte, int) {
			return encode(t, randomMsg(t, PMSLen+1), emLen), PMSLen
		},
		"shorter message": func() ([]byte, int) {
			return encode(t, randomMsg(t, PMSLen-1), emLen), PMSLen
		},
		"em too short": func() ([]byte, int) {
			return encode(t, msg, PMSLen+10), PMSLen
		},
	}

	for name, build := range cases {
		em, outLen := build()
		out := randomMsg(t, outLen)
		before := bytes.Clone(out)
		if unpadPKCS1v15(out, em) != 0 {
			t.Errorf("%s: invalid encoding accepted", name)
		}
		if !bytes.Equal(out, before) {
			t.Errorf("%s: output modified on failure", name)
		}
	}
}

func TestUnpadAllZeroEM(t *testing.T) {
	out := randomMsg(t, PMSLen)
	before := bytes.Clone(out)
	if unpadPKCS1v15(out, make([]byte, 256)) != 0 {
		t.Fatal("zero EM accepted")
	}
	if !bytes.Equal(out, before) {
		t.Fatal("output modified")
	}
}

// TestUnpadTiming compares the fastest of many batches for valid and
// invalid inputs of the same size. It only catches gross branching such
// as an early return on a bad header.
func TestUnpadTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	const (
		emLen   = 512
		trials  = 200
		perTime = 200
	)
	valid := encode(t, randomMsg(t, PMSLen), emLen)
	invalid := bytes.Clone(valid)
	invalid[0] = 0xff
	invalid[1] = 0x00
	out := make([]byte, PMSLen)

	fastest := func(em []byte) time.Duration {
		best := time.Duration(1<<63 - 1)
		for range trials {
			start := time.Now()
			for range perTime {
				unpadPKCS1v15(out, em)
			}
			if d := time.Since(start); d < best {
				best = d
			}
		}
		return best
	}

	fastest(valid) // warm up
	tv, ti := fastest(valid), fastest(invalid)
	ratio := float64(tv) / float64(ti)
	if ratio < 0.5 || ratio > 2.0 {
		t.Fatalf("valid %v vs invalid %v (ratio %.2f)", tv, ti, ratio)
	}
}
