package ai

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var tokenRegexp = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashEmbedder is a local bag-of-words embedder using the hashing trick.
// It needs no network access and is meant for development and tests.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

func (h *HashEmbedder) Model() string {
	return "hash"
}

func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.dims)
	for _, tok := range tokenRegexp.FindAllString(strings.ToLower(text), -1) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(tok))
		sum := hasher.Sum32()
		idx := int(sum % uint32(h.dims))
		// the high bit picks the sign so collisions partly cancel out
		if sum&(1<<31) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return Normalize(vec)
}

// Normalize scales v to unit length; a zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
