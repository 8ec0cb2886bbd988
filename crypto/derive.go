package crypto

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxSeeds bounds the number of seeds, including the bump, used in a
	// single derivation.
	MaxSeeds = 16
	// MaxSeedLength bounds each individual seed.
	MaxSeedLength = 32

	derivationMarker = "ProgramDerivedAddress"
)

var (
	ErrMaxSeedsExceeded   = errors.New("derive: too many seeds")
	ErrMaxSeedLength      = errors.New("derive: seed exceeds maximum length")
	ErrInvalidSeeds       = errors.New("derive: candidate lies on the secp256k1 curve")
	ErrNoViableBump       = errors.New("derive: no viable bump seed")
	ErrDerivationMismatch = errors.New("derive: reconstructed address does not match")
	ErrProgramIDRequired  = errors.New("derive: program id required")
)

// CreateProgramAddress derives the address owned by programID for the given
// seeds. The seeds must already include the bump when one is used. The
// derivation fails with ErrInvalidSeeds when the digest is a valid curve
// x-coordinate, which guarantees no private key controls the result.
func CreateProgramAddress(seeds [][]byte, programID Address) (Address, error) {
	if programID.IsZero() {
		return Address{}, ErrProgramIDRequired
	}
	if len(seeds) > MaxSeeds {
		return Address{}, ErrMaxSeedsExceeded
	}
	parts := make([][]byte, 0, len(seeds)+2)
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Address{}, fmt.Errorf("%w: seed %d has %d bytes", ErrMaxSeedLength, i, len(seed))
		}
		parts = append(parts, seed)
	}
	parts = append(parts, programID[:], []byte(derivationMarker))
	digest := crypto.Keccak256(parts...)
	if onCurve(digest) {
		return Address{}, ErrInvalidSeeds
	}
	var addr Address
	copy(addr[:], digest[len(digest)-AddressLength:])
	return addr, nil
}

// FindProgramAddress searches bumps from 255 down to 0 and returns the first
// derivation that is off the curve together with the bump used.
func FindProgramAddress(seeds [][]byte, programID Address) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, 0, ErrMaxSeedsExceeded
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}

func onCurve(digest []byte) bool {
	compressed := make([]byte, 33)
	compressed[0] = 0x02
	copy(compressed[1:], digest)
	_, err := crypto.DecompressPubkey(compressed)
	return err == nil
}
