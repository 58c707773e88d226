package knotcoin

import "fmt"

// EncodingError covers malformed wire bytes: wrong sizes, unknown versions,
// trailing garbage. Recoverable at the boundary; the input is rejected and
// never reaches state.
type EncodingError struct {
	Op  string
	Err error
}

func (e *EncodingError) Error() string { return fmt.Sprintf("encoding: %s: %v", e.Op, e.Err) }
func (e *EncodingError) Unwrap() error { return e.Err }

var (
	ErrMalformedEncoding  = fmt.Errorf("malformed encoding")
	ErrUnsupportedVersion = fmt.Errorf("unsupported version")
	ErrSizeMismatch       = fmt.Errorf("size mismatch")
)

// ValidationError covers PoW, merkle, signature, nonce, balance, timestamp,
// and target failures. The block or transaction is rejected and state is
// left untouched. It carries enough context for tests and logging without
// echoing raw attacker-controlled bytes.
type ValidationError struct {
	Code    ValidationCode
	TxIndex int // -1 if not tx-specific
	Field   string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.TxIndex >= 0 {
		return fmt.Sprintf("validation: %s (tx #%d, field %q): %v", e.Code, e.TxIndex, e.Field, e.Err)
	}
	return fmt.Sprintf("validation: %s: %v", e.Code, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ValidationCode enumerates the consensus rejection categories a block
// or transaction can fail with during validation.
type ValidationCode string

const (
	CodeBadPoW               ValidationCode = "BadPoW"
	CodeBadMerkle            ValidationCode = "BadMerkle"
	CodeBadTimestamp         ValidationCode = "BadTimestamp"
	CodeMTPViolation         ValidationCode = "MTPViolation"
	CodeBadTarget            ValidationCode = "BadTarget"
	CodeBadParent            ValidationCode = "BadParent"
	CodeBadCoinbase          ValidationCode = "BadCoinbase"
	CodeTxSignatureInvalid   ValidationCode = "TxSignatureInvalid"
	CodeTxNonceInvalid       ValidationCode = "TxNonceInvalid"
	CodeTxInsufficientFunds  ValidationCode = "TxInsufficientFunds"
	CodeAmountOverflow       ValidationCode = "AmountOverflow"
	CodeBlockTooLarge        ValidationCode = "BlockTooLarge"
	CodeDuplicateReferrer    ValidationCode = "DuplicateReferrer"
	CodeSelfReferral         ValidationCode = "SelfReferral"
	CodeDuplicateTransaction ValidationCode = "DuplicateTransaction"
	CodeReorgTooDeep         ValidationCode = "ReorgTooDeep"
)

func newValidationErr(code ValidationCode, txIndex int, field string, err error) *ValidationError {
	return &ValidationError{Code: code, TxIndex: txIndex, Field: field, Err: err}
}

// PolicyError covers mempool/pool-level rejections: full pool, RBF rejected,
// fee too low. State is untouched.
type PolicyError struct {
	Code PolicyCode
	Err  error
}

func (e *PolicyError) Error() string { return fmt.Sprintf("policy: %s: %v", e.Code, e.Err) }
func (e *PolicyError) Unwrap() error { return e.Err }

type PolicyCode string

const (
	CodeMempoolFull       PolicyCode = "MempoolFull"
	CodeNonceGap          PolicyCode = "NonceGap"
	CodeInsufficientFunds PolicyCode = "InsufficientFunds"
	CodeFeeTooLow         PolicyCode = "FeeTooLow"
	CodeRBFRejected       PolicyCode = "RBFRejected"
	CodeSignatureInvalid  PolicyCode = "SignatureInvalid"
	CodeDuplicateTx       PolicyCode = "DuplicateTx"
)

func newPolicyErr(code PolicyCode, err error) *PolicyError {
	return &PolicyError{Code: code, Err: err}
}

// StoreError covers the KV store's own failures: corruption, write
// conflicts, and IO faults. Durability errors in this category are fatal —
// the caller must stop applying blocks.
type StoreError struct {
	Code StoreCode
	Err  error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store: %s: %v", e.Code, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

type StoreCode string

const (
	CodeCorrupted     StoreCode = "Corrupted"
	CodeWriteConflict StoreCode = "WriteConflict"
	CodeIOFault       StoreCode = "IOFault"
)

func newStoreErr(code StoreCode, err error) *StoreError {
	return &StoreError{Code: code, Err: err}
}
