package crypto

import "fmt"

// Signer is the authority presented to a spending operation. Implementations
// are only produced by this package: either from a verified signature or by
// re-deriving a program address.
type Signer interface {
	Address() Address
	signer()
}

type verifiedSigner struct {
	addr Address
}

func (s verifiedSigner) Address() Address { return s.addr }
func (verifiedSigner) signer() {}

// VerifiedSigner wraps an address recovered from a checked signature. It must
// only be called by code that verified the signature itself.
func VerifiedSigner(addr Address) Signer {
	return verifiedSigner{addr: addr}
}

type programSigner struct {
	addr Address
}

func (s programSigner) Address() Address { return s.addr }
func (programSigner) signer() {}

func (s programSigner) String() string {
	return fmt.Sprintf("program-signer(%s)", s.addr)
}

// ProgramSigner reconstructs a derived address from seeds plus the recorded
// bump and returns it as a signing capability. expected is the address that
// was recorded at creation time; any difference means the stored seeds or bump
// are wrong and the capability can never be produced.
func ProgramSigner(programID Address, seeds [][]byte, bump uint8, expected Address) (Signer, error) {
	full := make([][]byte, len(seeds)+1)
	copy(full, seeds)
	full[len(seeds)] = []byte{bump}
	addr, err := CreateProgramAddress(full, programID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDerivationMismatch, err)
	}
	if addr != expected {
		return nil, fmt.Errorf("%w: derived %s, expected %s", ErrDerivationMismatch, addr, expected)
	}
	return programSigner{addr: addr}, nil
}
