package simulate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
)

// MinPoolSize leaves room for a sender plus two distinct receivers.
const MinPoolSize = 3

var ErrInvalidPoolSize = errors.New("simulate: wallet pool too small")

// Pool is the fixed set of synthetic wallet addresses.
type Pool []string

// NewPool returns wallet_000 .. wallet_{size-1}.
func NewPool(size int) (Pool, error) {
	if size < MinPoolSize {
		return nil, fmt.Errorf("%w: %d < %d", ErrInvalidPoolSize, size, MinPoolSize)
	}
	p := make(Pool, size)
	for i := range p {
		p[i] = fmt.Sprintf("wallet_%03d", i)
	}
	return p, nil
}

// Contains reports whether addr is in the pool.
func (p Pool) Contains(addr string) bool {
	for _, a := range p {
		if a == addr {
			return true
		}
	}
	return false
}

// TxID derives the transaction identity from its timestamp: the first 16
// hex characters of the SHA-256 digest. Equal timestamps always agree.
func TxID(timestamp string) string {
	sum := sha256.Sum256([]byte(timestamp))
	return hex.EncodeToString(sum[:])[:16]
}

// seedFromTxID turns a tx_id back into the 64 bits it encodes.
func seedFromTxID(txID string) int64 {
	v, err := strconv.ParseUint(txID, 16, 64)
	if err != nil {
		sum := sha256.Sum256([]byte(txID))
		v, _ = strconv.ParseUint(hex.EncodeToString(sum[:8]), 16, 64)
	}
	return int64(v)
}

// Picker chooses the sender and receivers for a transaction.
type Picker struct {
	pool          Pool
	rng           *rand.Rand
	deterministic bool
}

// NewPicker returns a picker drawing from rng. When deterministic is set
// each choice is instead seeded from the tx_id, so retries repeat it.
func NewPicker(pool Pool, rng *rand.Rand, deterministic bool) *Picker {
	return &Picker{pool: pool, rng: rng, deterministic: deterministic}
}

// Pick returns one sender and one or two receivers, distinct and never the
// sender, all drawn uniformly from the pool.
func (p *Picker) Pick(txID string) (string, []string) {
	r := p.rng
	if p.deterministic {
		r = rand.New(rand.NewSource(seedFromTxID(txID)))
	}

	sender := p.pool[r.Intn(len(p.pool))]
	count := 1 + r.Intn(2)

	others := make([]string, 0, len(p.pool)-1)
	for _, a := range p.pool {
		if a != sender {
			others = append(others, a)
		}
	}
	if count > len(others) {
		count = len(others)
	}
	// partial Fisher-Yates: the first count slots are a uniform sample
	for i := 0; i < count; i++ {
		j := i + r.Intn(len(others)-i)
		others[i], others[j] = others[j], others[i]
	}
	receivers := make([]string, count)
	copy(receivers, others[:count])
	return sender, receivers
}
