package main

import "math/rand"

const payloadPoolSize = 4 << 20

// payloadGenerator hands out page payloads cut from a pool of bytes that
// compresses to roughly ratio of its size.
type payloadGenerator struct {
	pool []byte
	pos  int
}

func newPayloadGenerator(ratio float64, seed int64) *payloadGenerator {
	if ratio <= 0 {
		ratio = 0.01
	}
	r := rand.New(rand.NewSource(seed))
	pool := make([]byte, 0, payloadPoolSize+128)
	for len(pool) < payloadPoolSize {
		pool = appendCompressible(pool, r, ratio, 128)
	}
	return &payloadGenerator{pool: pool}
}

func (g *payloadGenerator) Generate(n int) []byte {
	n = min(max(n, 0), len(g.pool))
	if g.pos+n > len(g.pool) {
		g.pos = 0
	}
	v := g.pool[g.pos : g.pos+n]
	g.pos += n
	return v
}

// appendCompressible appends n bytes made of a random printable fragment of
// n*ratio bytes repeated.
func appendCompressible(dst []byte, r *rand.Rand, ratio float64, n int) []byte {
	raw := min(max(int(float64(n)*ratio), 1), n)
	fragment := make([]byte, raw)
	for i := range fragment {
		fragment[i] = byte(' ' + r.Intn(95))
	}
	for i := 0; i < n; i++ {
		dst = append(dst, fragment[i%raw])
	}
	return dst
}
