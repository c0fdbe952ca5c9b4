package core

// MaskPlaceholder marks a position a residue oracle has to fill in.
const MaskPlaceholder = '?'

// Cysteine is kept out of every mutable pool: introducing or removing
// disulfide-forming residues usually breaks the binder.
const Cysteine = 'C'

// Residues is the canonical amino acid alphabet in a fixed order.
const Residues = "VYDLPMQGFRHANTIECSWK"

var (
	mutableResidues   = buildMutable()
	substitutionPools = buildSubstitutionPools()
)

func buildMutable() []byte {
	out := make([]byte, 0, len(Residues)-1)
	for i := 0; i < len(Residues); i++ {
		if Residues[i] != Cysteine {
			out = append(out, Residues[i])
		}
	}
	return out
}

func buildSubstitutionPools() map[byte][]byte {
	pools := make(map[byte][]byte, len(Residues))
	for i := 0; i < len(Residues); i++ {
		current := Residues[i]
		pool := make([]byte, 0, len(mutableResidues))
		for _, r := range mutableResidues {
			if r != current {
				pool = append(pool, r)
			}
		}
		pools[current] = pool
	}
	return pools
}

// MutableResidues returns the alphabet without cysteine.
func MutableResidues() []byte {
	return append([]byte(nil), mutableResidues...)
}

// SubstitutionPool returns the residues a substitution may write over current.
// For cysteine this is every non-cysteine residue.
func SubstitutionPool(current byte) []byte {
	if pool, ok := substitutionPools[current]; ok {
		return pool
	}
	return mutableResidues
}

// IsResidue reports whether b is one of the 20 canonical residues.
func IsResidue(b byte) bool {
	for i := 0; i < len(Residues); i++ {
		if Residues[i] == b {
			return true
		}
	}
	return false
}
