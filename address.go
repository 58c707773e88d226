package knotcoin

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Address is a 32-byte opaque identifier. The core never derives an
// address for display purposes (KOT1 base32 encoding is a wallet/UI
// concern) — it only needs to recompute an address from a claimed
// public key to check address_from_pubkey(pk) == tx.sender during
// validation.
type Address [AddressBytes]byte

// ZeroAddress is the coinbase sender placeholder; no other transaction may
// use it as sender.
var ZeroAddress Address

// String renders the address as lowercase hex, for logs and tests only.
// Human-facing display encoding belongs to the wallet.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether this is the all-zero coinbase sender address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// DeriveAddress computes the address a PQ public key would use: the low
// AddressBytes of SHA3-256(pubkey), the same hash primitive as every
// other consensus-critical hash in this core.
func DeriveAddress(pubkey []byte) Address {
	digest := sha3.Sum256(pubkey)
	var addr Address
	copy(addr[:], digest[:AddressBytes])
	return addr
}

// PrivacyCode is the deterministic 8-byte tag exposed only for display,
// and used internally as the referral index key.
type PrivacyCode [8]byte

// DerivePrivacyCode computes an address's privacy code: the first 8
// bytes of SHA3-256(address).
func DerivePrivacyCode(addr Address) PrivacyCode {
	digest := sha3.Sum256(addr[:])
	var code PrivacyCode
	copy(code[:], digest[:8])
	return code
}
