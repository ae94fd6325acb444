package types

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/xerrors"

	"go.dedis.ch/mpcagent/sharing"
)

// SecretShare is one party's fragment of a circuit input, tagged with the
// circuit it belongs to and the party it is destined for. It is consumed by
// exactly one computation session.
type SecretShare struct {
	CircuitID  string        `json:"circuit_id"`
	PartyIndex int           `json:"party_index"`
	NumParties int           `json:"num_parties"`
	Share      sharing.Share `json:"share"`
}

// HashBytes computes the digest that the origin signs
func (s *SecretShare) HashBytes() []byte {
	h := sha256.New()

	h.Write([]byte(s.CircuitID))
	h.Write([]byte("||"))
	h.Write([]byte(strconv.Itoa(s.PartyIndex)))
	h.Write([]byte("||"))
	h.Write([]byte(strconv.Itoa(s.NumParties)))
	h.Write([]byte("||"))
	h.Write([]byte(strconv.Itoa(s.Share.Index)))
	h.Write([]byte("||"))
	h.Write([]byte(s.Share.Prime))
	h.Write([]byte("||"))
	h.Write([]byte(strconv.Itoa(s.Share.Length)))
	for _, value := range s.Share.Values {
		h.Write([]byte("||"))
		h.Write([]byte(value))
	}

	return h.Sum(nil)
}

// String returns a description string for the share
func (s *SecretShare) String() string {
	return fmt.Sprintf("{share circuit=%s party=%d/%d}",
		s.CircuitID, s.PartyIndex, s.NumParties)
}

// -----------------------------------------------------------------------------
// Share Envelope

// ShareEnvelope wraps a secret share with the signature of the encryption
// agent that produced it, so a computation agent can reject shares injected
// by parties outside the deployment.
type ShareEnvelope struct {
	Share     SecretShare `json:"share"`
	Origin    string      `json:"origin"`
	Signature []byte      `json:"signature"`
}

// Sign creates an envelope for the share using the given private key
func (s *SecretShare) Sign(privateKey *ecdsa.PrivateKey) (*ShareEnvelope, error) {
	// no signature if no key is provided
	if privateKey == nil {
		return &ShareEnvelope{Share: *s}, nil
	}

	signature, err := crypto.Sign(s.HashBytes(), privateKey)
	if err != nil {
		return nil, err
	}

	origin := crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
	return &ShareEnvelope{Share: *s, Origin: origin, Signature: signature}, nil
}

// Verify checks that the envelope was signed by the claimed origin
func (env *ShareEnvelope) Verify() error {
	if len(env.Signature) == 0 {
		if env.Origin == "" {
			// unsigned envelope from an unauthenticated deployment
			return nil
		}
		return xerrors.Errorf("envelope from %s carries no signature", env.Origin)
	}

	digestHash := env.Share.HashBytes()
	publicKey, err := crypto.SigToPub(digestHash, env.Signature)
	if err != nil {
		return err
	}
	addr := crypto.PubkeyToAddress(*publicKey).Hex()
	if addr != env.Origin {
		return xerrors.Errorf("share %s is not signed by origin %s", env.Share.String(), env.Origin)
	}

	// verify sig input needs to be in [R || S] format
	sigValid := crypto.VerifySignature(crypto.FromECDSAPub(publicKey),
		digestHash, env.Signature[:len(env.Signature)-1])
	if !sigValid {
		return xerrors.Errorf("share %s has invalid signature from %s", env.Share.String(), env.Origin)
	}

	return nil
}

// String returns a description string for the envelope
func (env *ShareEnvelope) String() string {
	return fmt.Sprintf("{%s(signed): origin=%s, sig=%s}",
		env.Share.String(), env.Origin, hex.EncodeToString(env.Signature))
}
