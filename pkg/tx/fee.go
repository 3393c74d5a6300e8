package tx

// ProofSize is the size of a single-key spending proof.
const ProofSize = 56

// Shape summarizes a transaction for fee purposes.
type Shape struct {
	Inputs  int
	Outputs int
	Size    int // serialized bytes including estimated proofs
}

// ShapeOf returns the shape of an assembled transaction. An
// unserializable transaction reports Size 0 and falls back to the
// count-based estimate in RecommendFee.
func ShapeOf(tx *UnsignedTransaction) Shape {
	s := Shape{Inputs: len(tx.Inputs), Outputs: len(tx.Outputs)}
	if b, err := tx.Bytes(); err == nil {
		s.Size = len(b) + ProofSize*len(tx.Inputs)
	}
	return s
}

// EstimateSize returns the expected signed size of a transaction with
// the given counts, each output holding tokensPerOutput distinct tokens.
//
//	overhead(4) + inputs*(id 32 + proof 1+56 + ext 1)
//	  + outputs*(value 4 + P2PK tree 36 + height 4 + counts 2)
//	  + outputs*tokens*(table id 32 + index 1 + amount 4)
func EstimateSize(inputs, outputs, tokensPerOutput int) int {
	const overhead = 4
	const perInput = 32 + 1 + ProofSize + 1
	const perOutput = 4 + 36 + 4 + 2
	const perToken = 32 + 1 + 4

	if inputs < 0 {
		inputs = 0
	}
	if outputs < 0 {
		outputs = 0
	}
	if tokensPerOutput < 0 {
		tokensPerOutput = 0
	}
	return overhead + perInput*inputs + perOutput*outputs + perToken*tokensPerOutput*outputs
}

// RecommendFee returns the minimum fee for a transaction of the given
// shape at feeRate (nanoERG per byte). The larger of the measured size
// and the count-based estimate is charged, so the result never
// decreases as inputs or outputs are added.
func RecommendFee(s Shape, feeRate uint64) uint64 {
	size := max(s.Size, EstimateSize(s.Inputs, s.Outputs, 0))
	return uint64(size) * feeRate
}

// RequiredFee returns the recommended fee for a built transaction.
func RequiredFee(tx *UnsignedTransaction, feeRate uint64) uint64 {
	return RecommendFee(ShapeOf(tx), feeRate)
}
