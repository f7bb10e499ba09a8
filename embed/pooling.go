package embed

import "fmt"

// meanPool averages token states [seq, dim] over positions where mask is set.
func meanPool(hidden []float32, mask []int64, dim int) ([]float32, error) {
	seqLen := len(mask)
	if dim <= 0 || len(hidden) != seqLen*dim {
		return nil, fmt.Errorf("%w: hidden state has %d values for %d tokens of width %d",
			ErrDimensionMismatch, len(hidden), seqLen, dim)
	}
	out := make([]float32, dim)
	var count float32
	for t := 0; t < seqLen; t++ {
		if mask[t] == 0 {
			continue
		}
		count++
		row := hidden[t*dim : (t+1)*dim]
		for j, v := range row {
			out[j] += v
		}
	}
	if count == 0 {
		return out, nil
	}
	for j := range out {
		out[j] /= count
	}
	return out, nil
}

// truncate keeps the first max-1 tokens and the final (separator) token.
func truncate(ids []int64, max int) []int64 {
	if max <= 1 || len(ids) <= max {
		return ids
	}
	out := make([]int64, 0, max)
	out = append(out, ids[:max-1]...)
	return append(out, ids[len(ids)-1])
}

func toInt64(values []int) []int64 {
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}

func onesLike(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
