package knotcoin

import "testing"

func signedTestTx(t *testing.T, recipient Address, amount, fee, nonce uint64) *Transaction {
	t.Helper()
	pub, priv, err := PQGenerateKeyPair()
	if err != nil {
		t.Fatalf("PQGenerateKeyPair: %v", err)
	}
	tx := &Transaction{
		Sender:    DeriveAddress(pub),
		Recipient: recipient,
		Amount:    amount,
		Fee:       fee,
		Nonce:     nonce,
		PubKey:    pub,
	}
	sh := tx.SigningHash()
	tx.Signature = PQSign(priv, sh[:])
	return tx
}

func TestTransactionRoundTrip(t *testing.T) {
	tx := signedTestTx(t, Address{1, 2, 3}, 500, 10, 0)
	encoded := tx.Serialize()
	decoded, err := ParseTransaction(encoded)
	if err != nil {
		t.Fatalf("ParseTransaction: %v", err)
	}
	if decoded.Sender != tx.Sender || decoded.Amount != tx.Amount || decoded.Fee != tx.Fee {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, tx)
	}
	if decoded.TxID() != tx.TxID() {
		t.Fatalf("txid mismatch after round trip")
	}
}

func TestTransactionVerify(t *testing.T) {
	tx := signedTestTx(t, Address{9}, 1, 1, 0)
	if err := tx.Verify(); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestTransactionVerifyRejectsTamperedAmount(t *testing.T) {
	tx := signedTestTx(t, Address{9}, 1, 1, 0)
	tx.Amount = 999999
	if err := tx.Verify(); err == nil {
		t.Fatalf("expected signature verification to fail after tampering")
	}
}

func TestTransactionVerifyRejectsWrongSender(t *testing.T) {
	tx := signedTestTx(t, Address{9}, 1, 1, 0)
	tx.Sender = Address{0xAB}
	if err := tx.Verify(); err == nil {
		t.Fatalf("expected verify to fail when sender does not match pubkey")
	}
}

func TestCoinbaseSkipsVerification(t *testing.T) {
	coinbase := &Transaction{Sender: ZeroAddress, Recipient: Address{1}}
	if err := coinbase.Verify(); err != nil {
		t.Fatalf("coinbase should never fail verification: %v", err)
	}
	if !coinbase.IsCoinbase() {
		t.Fatalf("expected IsCoinbase true")
	}
}

func TestIsStructurallyValidRejectsLowFee(t *testing.T) {
	tx := signedTestTx(t, Address{9}, 1, 0, 0)
	if err := tx.IsStructurallyValid(); err == nil {
		t.Fatalf("expected fee-below-minimum rejection")
	}
}

func TestTxIDBindsSignature(t *testing.T) {
	tx := signedTestTx(t, Address{9}, 1, 1, 0)
	id1 := tx.TxID()
	tx.Signature[0] ^= 0xFF
	id2 := tx.TxID()
	if id1 == id2 {
		t.Fatalf("txid must change when signature changes")
	}
}
