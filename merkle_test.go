package knotcoin

import "testing"

func TestMerkleRootEmpty(t *testing.T) {
	if root := MerkleRoot(nil); !root.IsZero() {
		t.Fatalf("expected zero root for empty list")
	}
}

func TestMerkleRootSingle(t *testing.T) {
	h := sum256([]byte("a"))
	if root := MerkleRoot([]Hash{h}); root != h {
		t.Fatalf("single-leaf root should equal the leaf itself")
	}
}

func TestMerkleRootOddCountDuplicatesLast(t *testing.T) {
	a, b, c := sum256([]byte("a")), sum256([]byte("b")), sum256([]byte("c"))
	root3 := MerkleRoot([]Hash{a, b, c})
	root4 := MerkleRoot([]Hash{a, b, c, c})
	if root3 != root4 {
		t.Fatalf("odd-count root should match duplicating the last leaf")
	}
}

func TestMerkleRootDeterministic(t *testing.T) {
	a, b := sum256([]byte("x")), sum256([]byte("y"))
	r1 := MerkleRoot([]Hash{a, b})
	r2 := MerkleRoot([]Hash{a, b})
	if r1 != r2 {
		t.Fatalf("merkle root must be deterministic")
	}
}
