package emb

import (
	"fmt"
	"math"
)

// Pooling strategies for token level model outputs.
const (
	PoolingCLS  = "cls"
	PoolingMean = "mean"
)

// pool reduces a model output to a single sentence vector. A rank-2 output
// ([1, hidden]) is already pooled by the graph and is returned as is.
func pool(data []float32, shape []int64, mask []int64, strategy string) ([]float32, error) {
	switch len(shape) {
	case 2:
		if shape[0] != 1 {
			return nil, fmt.Errorf("unexpected batch size %d", shape[0])
		}
		out := make([]float32, shape[1])
		copy(out, data[:shape[1]])
		return out, nil
	case 3:
	default:
		return nil, fmt.Errorf("unsupported output rank %d", len(shape))
	}
	if shape[0] != 1 {
		return nil, fmt.Errorf("unexpected batch size %d", shape[0])
	}
	seq, hidden := int(shape[1]), int(shape[2])
	if len(data) < seq*hidden {
		return nil, fmt.Errorf("output too short: %d < %d", len(data), seq*hidden)
	}
	out := make([]float32, hidden)
	switch strategy {
	case PoolingMean:
		var count float32
		for t := 0; t < seq; t++ {
			if t < len(mask) && mask[t] == 0 {
				continue
			}
			row := data[t*hidden : (t+1)*hidden]
			for i, v := range row {
				out[i] += v
			}
			count++
		}
		if count == 0 {
			return nil, fmt.Errorf("attention mask is empty")
		}
		for i := range out {
			out[i] /= count
		}
	case PoolingCLS, "":
		copy(out, data[:hidden])
	default:
		return nil, fmt.Errorf("unknown pooling %q", strategy)
	}
	return out, nil
}

// l2Normalize scales vec to unit length in place. A zero vector is left as is.
func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// truncate caps ids at maxLen while keeping the closing special token.
func truncate(ids []int, maxLen int) []int {
	if maxLen <= 0 || len(ids) <= maxLen {
		return ids
	}
	out := make([]int, maxLen)
	copy(out, ids[:maxLen-1])
	out[maxLen-1] = ids[len(ids)-1]
	return out
}
