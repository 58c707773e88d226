package knotcoin

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// Post-quantum signature envelope sizes. Dilithium3 public keys are
// 1952 bytes and signatures are 3293 bytes; the core treats both as
// opaque byte blobs of exactly these lengths and never interprets their
// internal structure outside of Verify.
const (
	PQPublicKeySize = 1952
	PQSignatureSize = 3293
)

// PQGenerateKeyPair creates a fresh Dilithium3 keypair. Key generation is a
// wallet concern in production, but the core exposes it so tests can build
// fully signed transactions without depending on an external wallet
// package.
func PQGenerateKeyPair() (pub []byte, priv *mode3.PrivateKey, err error) {
	pk, sk, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	packed, err := pk.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return packed, sk, nil
}

// PQSign signs msg with sk, returning a PQSignatureSize-byte signature.
func PQSign(sk *mode3.PrivateKey, msg []byte) []byte {
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(sk, msg, sig)
	return sig
}

// PQVerify verifies that sig is a valid Dilithium3 signature over msg
// under the packed public key pubkey. It never panics on malformed input;
// malformed keys or signatures simply fail verification.
func PQVerify(pubkey, msg, sig []byte) bool {
	if len(pubkey) != PQPublicKeySize || len(sig) != PQSignatureSize {
		return false
	}
	var pk mode3.PublicKey
	if err := pk.UnmarshalBinary(pubkey); err != nil {
		return false
	}
	return mode3.Verify(&pk, msg, sig)
}

// pqSizeError is a small helper used by codecs that reject malformed
// key/signature lengths before ever reaching PQVerify.
func pqSizeError(field string, got, want int) error {
	return fmt.Errorf("%s: expected %d bytes, got %d", field, want, got)
}
