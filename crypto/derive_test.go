package crypto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func testProgramID() Address {
	var id Address
	copy(id[:], bytes.Repeat([]byte{0x5E}, AddressLength))
	return id
}

func orderSeeds(seller Address, orderID uint16) [][]byte {
	var idBytes [2]byte
	binary.LittleEndian.PutUint16(idBytes[:], orderID)
	return [][]byte{[]byte("order"), seller[:], idBytes[:]}
}

func TestFindProgramAddressDeterministic(t *testing.T) {
	var seller Address
	copy(seller[:], bytes.Repeat([]byte{0x01}, AddressLength))
	first, bump1, err := FindProgramAddress(orderSeeds(seller, 7), testProgramID())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, bump2, err := FindProgramAddress(orderSeeds(seller, 7), testProgramID())
	if err != nil {
		t.Fatalf("derive again: %v", err)
	}
	if first != second || bump1 != bump2 {
		t.Fatalf("derivation not deterministic: %s/%d vs %s/%d", first, bump1, second, bump2)
	}
	other, _, err := FindProgramAddress(orderSeeds(seller, 8), testProgramID())
	if err != nil {
		t.Fatalf("derive other: %v", err)
	}
	if other == first {
		t.Fatalf("different order ids must derive different addresses")
	}
}

func TestFindProgramAddressDependsOnProgramID(t *testing.T) {
	var seller Address
	copy(seller[:], bytes.Repeat([]byte{0x02}, AddressLength))
	a, _, err := FindProgramAddress(orderSeeds(seller, 1), testProgramID())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	var otherProgram Address
	copy(otherProgram[:], bytes.Repeat([]byte{0x77}, AddressLength))
	b, _, err := FindProgramAddress(orderSeeds(seller, 1), otherProgram)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a == b {
		t.Fatalf("program id must be part of the derivation")
	}
}

func TestCreateProgramAddressMatchesFoundBump(t *testing.T) {
	var seller Address
	copy(seller[:], bytes.Repeat([]byte{0x03}, AddressLength))
	seeds := orderSeeds(seller, 3)
	addr, bump, err := FindProgramAddress(seeds, testProgramID())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	rebuilt, err := CreateProgramAddress(append(seeds, []byte{bump}), testProgramID())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rebuilt != addr {
		t.Fatalf("expected %s, got %s", addr, rebuilt)
	}
}

func TestCreateProgramAddressRejectsBadSeeds(t *testing.T) {
	if _, err := CreateProgramAddress([][]byte{bytes.Repeat([]byte{1}, MaxSeedLength+1)}, testProgramID()); !errors.Is(err, ErrMaxSeedLength) {
		t.Fatalf("expected seed length error, got %v", err)
	}
	many := make([][]byte, MaxSeeds+1)
	for i := range many {
		many[i] = []byte{byte(i)}
	}
	if _, err := CreateProgramAddress(many, testProgramID()); !errors.Is(err, ErrMaxSeedsExceeded) {
		t.Fatalf("expected too many seeds error, got %v", err)
	}
	if _, err := CreateProgramAddress([][]byte{[]byte("x")}, ZeroAddress); !errors.Is(err, ErrProgramIDRequired) {
		t.Fatalf("expected program id error, got %v", err)
	}
}

func TestProgramSignerReconstruction(t *testing.T) {
	var seller Address
	copy(seller[:], bytes.Repeat([]byte{0x04}, AddressLength))
	seeds := orderSeeds(seller, 9)
	addr, bump, err := FindProgramAddress(seeds, testProgramID())
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	signer, err := ProgramSigner(testProgramID(), seeds, bump, addr)
	if err != nil {
		t.Fatalf("program signer: %v", err)
	}
	if signer.Address() != addr {
		t.Fatalf("signer address mismatch")
	}
	if _, err := ProgramSigner(testProgramID(), seeds, bump-1, addr); !errors.Is(err, ErrDerivationMismatch) {
		t.Fatalf("expected mismatch for wrong bump, got %v", err)
	}
	if _, err := ProgramSigner(testProgramID(), orderSeeds(seller, 10), bump, addr); !errors.Is(err, ErrDerivationMismatch) {
		t.Fatalf("expected mismatch for wrong seeds, got %v", err)
	}
}
