package seq

import "iter"

// Collect drains s into a slice, stopping at the first error.
func Collect[T any](s iter.Seq2[T, error]) ([]T, error) {
	out := make([]T, 0)
	for v, err := range s {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
