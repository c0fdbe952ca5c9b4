// Package residue provides residue-distribution oracles: remote protein
// language models, a cache in front of them, and a fixed profile for offline
// runs.
package residue

// MaskToken is the token masked-language-model endpoints expect in place of
// the placeholder character.
const MaskToken = "<mask>"

// defaultVocabulary is the ESM-2 token list in model order.
var defaultVocabulary = []string{
	"<cls>", "<pad>", "<eos>", "<unk>",
	"L", "A", "G", "V", "S", "E", "R", "T", "I", "D", "P", "K",
	"Q", "N", "F", "Y", "M", "H", "W", "C",
	"X", "B", "U", "Z", "O", ".", "-",
	"<null_1>", MaskToken,
}

// DefaultVocabulary returns a copy of the ESM-2 vocabulary.
func DefaultVocabulary() []string {
	return append([]string(nil), defaultVocabulary...)
}

// checkShape verifies one distribution per character and one weight per
// vocabulary token.
func checkShape(sequences []string, dists [][][]float64, vocabSize int) error {
	if len(dists) != len(sequences) {
		return shapeError("sent %d sequences, got %d distributions", len(sequences), len(dists))
	}
	for i, seq := range sequences {
		if len(dists[i]) != len(seq) {
			return shapeError("sequence %d has %d characters, got %d positions", i, len(seq), len(dists[i]))
		}
		for pos, w := range dists[i] {
			if len(w) != vocabSize {
				return shapeError("sequence %d position %d has %d weights, vocabulary has %d", i, pos, len(w), vocabSize)
			}
		}
	}
	return nil
}
