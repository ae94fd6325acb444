// Package sharing implements Shamir secret sharing of raw byte payloads
// over Zp. The payload is cut into fixed-size blocks, each block is shared
// as one field element, and party i receives the polynomial evaluations on
// x = i+1. Reconstructing needs every share, so no single agent ever learns
// anything about the payload.
package sharing

import (
	"math/big"

	"golang.org/x/xerrors"
)

// blockSize is the number of payload bytes packed into one field element.
// The prime is larger than 2^(8*blockSize), so every block fits in Zp.
const blockSize = 16

// primeBits must exceed 8*blockSize plus one length byte
const primeBits = 144

// Share is the fragment of a payload destined to one party. Index is the
// 1-based x coordinate (a zero x would leak the secret directly). Values
// carry one evaluation per payload block, in base-10 text.
type Share struct {
	Index  int      `json:"index"`
	Prime  string   `json:"prime"`
	Length int      `json:"length"`
	Values []string `json:"values"`
}

// Split cuts the secret into blocks and shares each block among n parties.
// The returned slice is ordered by party index.
func Split(secret []byte, n int) ([]Share, error) {
	if n <= 0 {
		return nil, xerrors.Errorf("cannot split among %d parties", n)
	}

	prime, err := generateRandomPrime(primeBits)
	if err != nil {
		return nil, err
	}

	xcoord := make([]big.Int, n)
	for i := range xcoord {
		xcoord[i] = *big.NewInt(int64(i + 1))
	}

	nblocks := (len(secret) + blockSize - 1) / blockSize
	shares := make([]Share, n)
	for i := range shares {
		shares[i] = Share{
			Index:  i + 1,
			Prime:  prime.Text(10),
			Length: len(secret),
			Values: make([]string, 0, nblocks),
		}
	}

	for b := 0; b < nblocks; b++ {
		end := (b + 1) * blockSize
		if end > len(secret) {
			end = len(secret)
		}
		block := new(big.Int).SetBytes(secret[b*blockSize : end])

		evals, err := shamirShareZp(*block, *prime, xcoord)
		if err != nil {
			return nil, err
		}
		for i := range shares {
			shares[i].Values = append(shares[i].Values, evals[i].Text(10))
		}
	}

	return shares, nil
}

// Reconstruct recovers the payload from a complete set of shares
func Reconstruct(shares []Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, xerrors.Errorf("no shares to reconstruct from")
	}

	prime, ok := new(big.Int).SetString(shares[0].Prime, 10)
	if !ok {
		return nil, xerrors.Errorf("malformed prime: %s", shares[0].Prime)
	}

	nblocks := len(shares[0].Values)
	length := shares[0].Length
	xcoord := make([]big.Int, len(shares))
	for i, share := range shares {
		if share.Prime != shares[0].Prime {
			return nil, xerrors.Errorf("shares use different primes")
		}
		if len(share.Values) != nblocks || share.Length != length {
			return nil, xerrors.Errorf("shares have inconsistent sizes")
		}
		xcoord[i] = *big.NewInt(int64(share.Index))
	}

	secret := make([]byte, 0, length)
	for b := 0; b < nblocks; b++ {
		ycoord := make([]big.Int, len(shares))
		for i, share := range shares {
			y, ok := new(big.Int).SetString(share.Values[b], 10)
			if !ok {
				return nil, xerrors.Errorf("malformed share value: %s", share.Values[b])
			}
			ycoord[i] = *y
		}

		block := lagrangeInterpolationZp(ycoord, xcoord, prime)

		size := blockSize
		if b == nblocks-1 && length%blockSize != 0 {
			size = length % blockSize
		}
		if block.BitLen() > 8*size {
			return nil, xerrors.Errorf("reconstructed block does not fit the payload, share set is incomplete or corrupted")
		}
		secret = append(secret, block.FillBytes(make([]byte, size))...)
	}

	return secret, nil
}

// shamirShareZp evaluates a fresh random polynomial with f(0)=secret on
// every x coordinate. The degree equals len(xcoord)-1: reconstruction
// requires all parties, no redundancy.
func shamirShareZp(secret, prime big.Int, xcoord []big.Int) ([]big.Int, error) {
	degree := len(xcoord) - 1

	poly, err := newRandomPolynomialZp(secret, degree, &prime)
	if err != nil {
		return nil, err
	}

	zero := big.NewInt(0)
	results := make([]big.Int, len(xcoord))
	for idx, id := range xcoord {
		// id should not equal to zero, or the secret will be directly leaked
		if id.Cmp(zero) == 0 {
			return nil, xerrors.Errorf("illegal input x equals to 0")
		}
		results[idx] = poly.computePolynomialZp(&id, &prime)
	}

	return results, nil
}
