package knotcoin

import (
	"encoding/binary"
	"fmt"
)

// ReferralTagBytes and GovernanceDataBytes are the optional-field widths.
const (
	ReferralTagBytes    = 8
	GovernanceDataBytes = 32
)

const (
	txFlagReferral   byte = 1 << 0
	txFlagGovernance byte = 1 << 1
)

// Transaction is the fixed-shape value transfer record. The referral
// tag, when present, is interpreted only on the sender's first outbound
// transaction; the governance data field, when present, is interpreted
// only as a vote signal for a proposal target. Both are otherwise opaque
// to the encoding layer.
type Transaction struct {
	Sender    Address
	Recipient Address
	Amount    uint64
	Fee       uint64
	Nonce     uint64

	HasReferral bool
	ReferralTag [ReferralTagBytes]byte

	HasGovernance  bool
	GovernanceData [GovernanceDataBytes]byte

	PubKey    []byte // PQPublicKeySize bytes, absent for the implicit coinbase
	Signature []byte // PQSignatureSize bytes, absent for the implicit coinbase
}

// IsCoinbase reports whether this transaction is the implicit first
// entry of a block: zero-address sender, no signature verification.
func (t *Transaction) IsCoinbase() bool {
	return t.Sender.IsZero()
}

// encodeUnsigned writes the canonical pre-signature byte layout: every
// field up to and including the public key. SigningHash and Parse both
// rely on this layout staying append-only (version, addresses, amounts,
// flags, optional fields, pubkey) so old transactions keep decoding after
// new optional fields are added.
func (t *Transaction) encodeUnsigned() []byte {
	flags := byte(0)
	if t.HasReferral {
		flags |= txFlagReferral
	}
	if t.HasGovernance {
		flags |= txFlagGovernance
	}

	size := 1 + AddressBytes*2 + 8*3 + 1
	if t.HasReferral {
		size += ReferralTagBytes
	}
	if t.HasGovernance {
		size += GovernanceDataBytes
	}
	if !t.IsCoinbase() {
		size += len(t.PubKey)
	}

	buf := make([]byte, size)
	off := 0
	buf[off] = 1 // version
	off++
	copy(buf[off:], t.Sender[:])
	off += AddressBytes
	copy(buf[off:], t.Recipient[:])
	off += AddressBytes
	binary.LittleEndian.PutUint64(buf[off:], t.Amount)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], t.Fee)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], t.Nonce)
	off += 8
	buf[off] = flags
	off++
	if t.HasReferral {
		copy(buf[off:], t.ReferralTag[:])
		off += ReferralTagBytes
	}
	if t.HasGovernance {
		copy(buf[off:], t.GovernanceData[:])
		off += GovernanceDataBytes
	}
	if !t.IsCoinbase() {
		copy(buf[off:], t.PubKey)
		off += len(t.PubKey)
	}
	return buf[:off]
}

// SigningHash is SHA3-256 over the canonical unsigned encoding: the
// signature covers the canonical tx bytes excluding the signature field
// itself.
func (t *Transaction) SigningHash() Hash {
	return sum256(t.encodeUnsigned())
}

// TxID is SHA3-256 of the canonical unsigned encoding: the same bytes
// SigningHash covers. The signature never factors into the id, so
// re-signing a transaction (or a malleated signature reaching the same
// payload) never changes its id.
func (t *Transaction) TxID() Hash {
	return t.SigningHash()
}

// Serialize returns the full wire encoding: the unsigned body followed by
// the signature (absent for the coinbase).
func (t *Transaction) Serialize() []byte {
	body := t.encodeUnsigned()
	if t.IsCoinbase() {
		return body
	}
	out := make([]byte, len(body)+len(t.Signature))
	copy(out, body)
	copy(out[len(body):], t.Signature)
	return out
}

// ParseTransaction decodes a wire-encoded transaction. It never panics on
// malformed input; all length checks happen before any field is read.
func ParseTransaction(data []byte) (*Transaction, error) {
	minLen := 1 + AddressBytes*2 + 8*3 + 1
	if len(data) < minLen {
		return nil, &EncodingError{Op: "ParseTransaction", Err: ErrSizeMismatch}
	}
	off := 0
	version := data[off]
	off++
	if version != 1 {
		return nil, &EncodingError{Op: "ParseTransaction", Err: ErrUnsupportedVersion}
	}
	t := &Transaction{}
	copy(t.Sender[:], data[off:off+AddressBytes])
	off += AddressBytes
	copy(t.Recipient[:], data[off:off+AddressBytes])
	off += AddressBytes
	t.Amount = binary.LittleEndian.Uint64(data[off:])
	off += 8
	t.Fee = binary.LittleEndian.Uint64(data[off:])
	off += 8
	t.Nonce = binary.LittleEndian.Uint64(data[off:])
	off += 8
	flags := data[off]
	off++
	t.HasReferral = flags&txFlagReferral != 0
	if t.HasReferral {
		if len(data) < off+ReferralTagBytes {
			return nil, &EncodingError{Op: "ParseTransaction", Err: ErrSizeMismatch}
		}
		copy(t.ReferralTag[:], data[off:off+ReferralTagBytes])
		off += ReferralTagBytes
	}
	t.HasGovernance = flags&txFlagGovernance != 0
	if t.HasGovernance {
		if len(data) < off+GovernanceDataBytes {
			return nil, &EncodingError{Op: "ParseTransaction", Err: ErrSizeMismatch}
		}
		copy(t.GovernanceData[:], data[off:off+GovernanceDataBytes])
		off += GovernanceDataBytes
	}

	if t.Sender.IsZero() {
		if off != len(data) {
			return nil, &EncodingError{Op: "ParseTransaction", Err: ErrSizeMismatch}
		}
		return t, nil
	}

	if len(data) < off+PQPublicKeySize+PQSignatureSize {
		return nil, &EncodingError{Op: "ParseTransaction", Err: ErrSizeMismatch}
	}
	t.PubKey = append([]byte(nil), data[off:off+PQPublicKeySize]...)
	off += PQPublicKeySize
	t.Signature = append([]byte(nil), data[off:off+PQSignatureSize]...)
	off += PQSignatureSize
	if off != len(data) {
		return nil, &EncodingError{Op: "ParseTransaction", Err: ErrSizeMismatch}
	}
	return t, nil
}

// Verify checks the post-quantum signature and that the public key
// actually derives the claimed sender address. The core treats the
// signature scheme as an opaque verify(pk, msg, sig) -> bool; PQVerify is
// that boundary.
func (t *Transaction) Verify() error {
	if t.IsCoinbase() {
		return nil
	}
	if len(t.PubKey) != PQPublicKeySize {
		return newValidationErr(CodeTxSignatureInvalid, -1, "pubkey", fmt.Errorf("bad pubkey length %d", len(t.PubKey)))
	}
	if DeriveAddress(t.PubKey) != t.Sender {
		return newValidationErr(CodeTxSignatureInvalid, -1, "sender", fmt.Errorf("sender does not match pubkey"))
	}
	sh := t.SigningHash()
	if !PQVerify(t.PubKey, sh[:], t.Signature) {
		return newValidationErr(CodeTxSignatureInvalid, -1, "signature", fmt.Errorf("signature verification failed"))
	}
	return nil
}

// IsStructurallyValid checks the context-free invariants every
// transaction must satisfy regardless of chain state: minimum fee, no
// amount+fee overflow, and a valid signature (via Verify). A zero-address
// sender is treated as the coinbase and passes unchecked; whether it
// appears only as a block's first transaction is checked by the block
// validator.
func (t *Transaction) IsStructurallyValid() error {
	if t.IsCoinbase() {
		return nil
	}
	if t.Fee < MinFeeKnots {
		return newValidationErr(CodeTxInsufficientFunds, -1, "fee", fmt.Errorf("fee below minimum"))
	}
	total := t.Amount + t.Fee
	if total < t.Amount {
		return newValidationErr(CodeAmountOverflow, -1, "amount+fee", fmt.Errorf("overflow"))
	}
	return t.Verify()
}
