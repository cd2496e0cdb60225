package privacy

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
)

// DefaultPaillierBits is the default key size for the homomorphic aggregator.
// Deliberately small: this is a research/demo primitive, not a hardened
// cryptosystem, and it is explicitly not constant-time or
// side-channel-resistant.
const DefaultPaillierBits = 512

var one = big.NewInt(1)

// Ciphertext is a Paillier ciphertext in Z*_{n^2}.
type Ciphertext struct {
	c *big.Int
}

// PublicKey holds the Paillier public parameters.
type PublicKey struct {
	N        *big.Int
	NSquared *big.Int
	G        *big.Int // n+1, the standard generator
}

// KeyPair provides Paillier key material and the private decryption
// operation. The interface isolates key generation so a vetted cryptography
// library can be substituted without touching callers.
type KeyPair interface {
	// PublicKey returns the public parameters used for encryption and the
	// homomorphic operations.
	PublicKey() *PublicKey

	// Decrypt recovers the signed plaintext from a ciphertext.
	Decrypt(c *Ciphertext) (int64, error)
}

// generatedKeyPair is the built-in KeyPair backed by crypto/rand prime
// generation.
type generatedKeyPair struct {
	pub    *PublicKey
	lambda *big.Int // lcm(p-1, q-1)
	mu     *big.Int // (L(g^lambda mod n^2))^-1 mod n
}

// GenerateKeyPair produces a Paillier key pair with an n of roughly the given
// bit length. Bits below 128 are rejected; zero uses the default.
func GenerateKeyPair(bits int) (KeyPair, error) {
	if bits == 0 {
		bits = DefaultPaillierBits
	}
	if bits < 128 {
		return nil, fmt.Errorf("paillier: key size %d too small", bits)
	}

	var p, q *big.Int
	var err error
	for {
		p, err = rand.Prime(rand.Reader, bits/2)
		if err != nil {
			return nil, fmt.Errorf("paillier: prime generation: %w", err)
		}
		q, err = rand.Prime(rand.Reader, bits/2)
		if err != nil {
			return nil, fmt.Errorf("paillier: prime generation: %w", err)
		}
		if p.Cmp(q) != 0 {
			break
		}
	}

	n := new(big.Int).Mul(p, q)
	nSquared := new(big.Int).Mul(n, n)
	g := new(big.Int).Add(n, one)

	pMinus1 := new(big.Int).Sub(p, one)
	qMinus1 := new(big.Int).Sub(q, one)
	gcd := new(big.Int).GCD(nil, nil, pMinus1, qMinus1)
	lambda := new(big.Int).Div(new(big.Int).Mul(pMinus1, qMinus1), gcd)

	// mu = (L(g^lambda mod n^2))^-1 mod n
	lVal := lFunc(new(big.Int).Exp(g, lambda, nSquared), n)
	mu := new(big.Int).ModInverse(lVal, n)
	if mu == nil {
		return nil, fmt.Errorf("paillier: degenerate key, retry generation")
	}

	return &generatedKeyPair{
		pub:    &PublicKey{N: n, NSquared: nSquared, G: g},
		lambda: lambda,
		mu:     mu,
	}, nil
}

// PublicKey returns the public parameters.
func (kp *generatedKeyPair) PublicKey() *PublicKey {
	return kp.pub
}

// Decrypt recovers the plaintext: m = L(c^lambda mod n^2) * mu mod n.
// Values above n/2 decode as negative.
func (kp *generatedKeyPair) Decrypt(c *Ciphertext) (int64, error) {
	if c == nil || c.c == nil {
		return 0, fmt.Errorf("paillier: nil ciphertext")
	}
	n := kp.pub.N

	l := lFunc(new(big.Int).Exp(c.c, kp.lambda, kp.pub.NSquared), n)
	m := new(big.Int).Mod(new(big.Int).Mul(l, kp.mu), n)

	// Centered representation: plaintexts beyond n/2 are negatives.
	half := new(big.Int).Rsh(n, 1)
	if m.Cmp(half) > 0 {
		m.Sub(m, n)
	}
	if !m.IsInt64() {
		return 0, fmt.Errorf("paillier: plaintext exceeds int64 range")
	}
	return m.Int64(), nil
}

// lFunc is Paillier's L(x) = (x-1)/n.
func lFunc(x, n *big.Int) *big.Int {
	return new(big.Int).Div(new(big.Int).Sub(x, one), n)
}

// Encrypt encrypts a signed value under the public key:
// c = g^m * r^n mod n^2 with fresh random r in Z*_n.
func (pk *PublicKey) Encrypt(value int64) (*Ciphertext, error) {
	m := big.NewInt(value)
	m.Mod(m, pk.N) // negatives wrap into the centered representation

	r, err := randomUnit(pk.N)
	if err != nil {
		return nil, err
	}

	gm := new(big.Int).Exp(pk.G, m, pk.NSquared)
	rn := new(big.Int).Exp(r, pk.N, pk.NSquared)
	c := new(big.Int).Mod(new(big.Int).Mul(gm, rn), pk.NSquared)

	return &Ciphertext{c: c}, nil
}

// Add homomorphically adds two ciphertexts: Dec(Add(c1,c2)) == Dec(c1)+Dec(c2).
func (pk *PublicKey) Add(c1, c2 *Ciphertext) *Ciphertext {
	return &Ciphertext{c: new(big.Int).Mod(new(big.Int).Mul(c1.c, c2.c), pk.NSquared)}
}

// ScalarMultiply homomorphically scales a ciphertext:
// Dec(ScalarMultiply(c,k)) == Dec(c)*k. Negative scalars use the modular
// inverse of the ciphertext.
func (pk *PublicKey) ScalarMultiply(c *Ciphertext, k int64) (*Ciphertext, error) {
	base := c.c
	if k < 0 {
		inv := new(big.Int).ModInverse(c.c, pk.NSquared)
		if inv == nil {
			return nil, fmt.Errorf("paillier: ciphertext not invertible")
		}
		base = inv
		k = -k
	}
	return &Ciphertext{c: new(big.Int).Exp(base, big.NewInt(k), pk.NSquared)}, nil
}

// randomUnit draws r in [1, n) with gcd(r, n) == 1.
func randomUnit(n *big.Int) (*big.Int, error) {
	for {
		r, err := rand.Int(rand.Reader, n)
		if err != nil {
			return nil, fmt.Errorf("paillier: randomness: %w", err)
		}
		if r.Sign() == 0 {
			continue
		}
		if new(big.Int).GCD(nil, nil, r, n).Cmp(one) == 0 {
			return r, nil
		}
	}
}

// weightScale converts fractional weights to integer scalars (two decimal
// places) so they survive the integer-only homomorphic domain.
const weightScale = 100

// AggregateWeighted computes the weighted sum of values without decrypting
// any individual value: each value is encrypted, scaled by its weight
// (quantized to hundredths), summed under encryption, and only the final
// total is decrypted. The context is checked between modular-exponentiation
// steps so a cancelled request stops burning CPU.
func AggregateWeighted(ctx context.Context, kp KeyPair, values, weights []float64) (float64, error) {
	if len(values) != len(weights) {
		return 0, fmt.Errorf("paillier: %d values but %d weights", len(values), len(weights))
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("paillier: nothing to aggregate")
	}

	pk := kp.PublicKey()
	sum, err := pk.Encrypt(0)
	if err != nil {
		return 0, err
	}

	for i := range values {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("aggregation aborted: %w", err)
		}

		c, err := pk.Encrypt(int64(math.Round(values[i])))
		if err != nil {
			return 0, err
		}
		scaled, err := pk.ScalarMultiply(c, int64(math.Round(weights[i]*weightScale)))
		if err != nil {
			return 0, err
		}
		sum = pk.Add(sum, scaled)
	}

	total, err := kp.Decrypt(sum)
	if err != nil {
		return 0, err
	}
	return float64(total) / weightScale, nil
}
