package sharing

import (
	"crypto/rand"
	"math/big"
)

// polynomialZp is a polynomial with big.Int coefficients in Zp
type polynomialZp struct {
	degree       int
	coefficients []big.Int
}

// addZp adds two numbers in Zp, returns a + b mod p
func addZp(a, b, p *big.Int) big.Int {
	sum := big.NewInt(0)
	sum.Add(a, b)
	sum.Mod(sum, p)
	return *sum
}

// subZp subtracts two numbers in Zp, returns a - b mod p
func subZp(a, b, p *big.Int) big.Int {
	dif := big.NewInt(0)
	dif.Sub(a, b)

	zero := big.NewInt(0)
	if dif.Cmp(zero) == -1 {
		dif.Add(dif, p)
	}
	return *dif
}

// multZp multiplies two numbers in Zp, returns a * b mod p
func multZp(a, b, p *big.Int) big.Int {
	prod := big.NewInt(0)
	prod.Mul(a, b)
	prod.Mod(prod, p)
	return *prod
}

// divZp divides two numbers in Zp, returns a * b^-1 mod p
func divZp(a, b, p *big.Int) big.Int {
	zero := big.NewInt(0)
	if b.Cmp(zero) == 0 {
		// should never happen
		panic("divide by zero")
	}

	b0 := new(big.Int).Set(b)
	bInverse := new(big.Int).Set(b0.ModInverse(b0, p))
	quo := big.NewInt(0)
	quo.Mul(a, bInverse)
	quo.Mod(quo, p)
	return *quo
}

// generateRandomPrime generates a random prime of the given bits
func generateRandomPrime(bits int) (*big.Int, error) {
	return rand.Prime(rand.Reader, bits)
}

// generateRandomNumber generates a random number in Zp
func generateRandomNumber(p *big.Int) (*big.Int, error) {
	return rand.Int(rand.Reader, p)
}

// newRandomPolynomialZp generates a random polynomial with f(0)=secret
// while all coefficients are big.Int, in Zp
func newRandomPolynomialZp(secret big.Int, degree int, p *big.Int) (*polynomialZp, error) {
	// random polynomial f of degree d is defined by d + 1 points
	coefficients := make([]big.Int, degree+1)
	// s = f(0) = secret
	coefficients[0] = secret

	// generate random coefficients
	for i := 1; i <= degree; i++ {
		n, err := generateRandomNumber(p)
		if err != nil {
			return nil, err
		}
		coefficients[i] = *n
	}

	poly := polynomialZp{
		degree:       degree,
		coefficients: coefficients,
	}

	return &poly, nil
}

// computePolynomialZp evaluates the y value of the given x coordinate on
// the polynomial (in Zp)
func (p *polynomialZp) computePolynomialZp(x, prime *big.Int) big.Int {
	zero := big.NewInt(0)
	if x.Cmp(zero) == 0 {
		return p.coefficients[0]
	}

	value := p.coefficients[p.degree]
	for i := p.degree - 1; i > -1; i-- {
		value = multZp(&value, x, prime)
		value = addZp(&value, &(p.coefficients[i]), prime)
	}
	return value
}

// lagrangeInterpolationZp returns the polynomial value on x = 0.
// All inputs must be in Zp.
func lagrangeInterpolationZp(ycoord []big.Int, xcoord []big.Int, p *big.Int) big.Int {
	result := big.NewInt(0)
	for i, y := range ycoord {
		w := big.NewInt(1)
		for j, x := range xcoord {
			if i == j {
				continue
			}
			denominator := subZp(&x, &(xcoord[i]), p)
			tmp := divZp(&x, &denominator, p)
			*w = multZp(w, &tmp, p)
		}
		product := multZp(w, &y, p)
		*result = addZp(result, &product, p)
	}
	return *result
}
