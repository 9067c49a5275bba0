// Package model provides the reference model/optimizer collaborator: small
// fully-connected networks with manual backpropagation, resettable
// optimizers and per-parameter importance trackers.
package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

// Arch selects the network architecture.
type Arch string

const (
	// ArchFCSmall is a two-hidden-layer net with 256 units per layer.
	ArchFCSmall Arch = "FC-S"
	// ArchFCBig is a two-hidden-layer net with 2000 units per layer.
	ArchFCBig Arch = "FC-B"
)

// Archs lists every recognized architecture.
var Archs = []Arch{ArchFCSmall, ArchFCBig}

// ParseArch validates an architecture name.
func ParseArch(name string) (Arch, error) {
	for _, a := range Archs {
		if string(a) == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q (valid: %v)", continual.ErrUnknownArchitecture, name, Archs)
}

func (a Arch) hiddenSizes() []int {
	if a == ArchFCBig {
		return []int{2000, 2000}
	}
	return []int{256, 256}
}

// network is a fully-connected net with ReLU hidden layers and a softmax
// cross-entropy head. All parameters live in one flat slice so optimizers,
// importance trackers and checkpoints operate on plain vectors.
type network struct {
	sizes  []int
	params []float64
	wOff   []int // per-layer weight offset into params
	bOff   []int // per-layer bias offset into params
}

func newNetwork(arch Arch, inputDim, numClasses int, rng *rand.Rand) *network {
	sizes := append(append([]int{inputDim}, arch.hiddenSizes()...), numClasses)
	layers := len(sizes) - 1

	total := 0
	wOff := make([]int, layers)
	bOff := make([]int, layers)
	for l := 0; l < layers; l++ {
		wOff[l] = total
		total += sizes[l] * sizes[l+1]
		bOff[l] = total
		total += sizes[l+1]
	}

	n := &network{sizes: sizes, params: make([]float64, total), wOff: wOff, bOff: bOff}
	for l := 0; l < layers; l++ {
		bound := math.Sqrt(6.0 / float64(sizes[l]+sizes[l+1]))
		w := n.params[n.wOff[l] : n.wOff[l]+sizes[l]*sizes[l+1]]
		for i := range w {
			w[i] = (rng.Float64()*2 - 1) * bound
		}
	}
	return n
}

func (n *network) layers() int {
	return len(n.sizes) - 1
}

// lastLayerStart returns the params offset of the output layer; everything
// below it belongs to the feature extractor.
func (n *network) lastLayerStart() int {
	return n.wOff[n.layers()-1]
}

// forward computes all layer activations. acts[0] is the input; the final
// entry holds the pre-softmax logits.
func (n *network) forward(x []float64) [][]float64 {
	acts := make([][]float64, n.layers()+1)
	acts[0] = x
	for l := 0; l < n.layers(); l++ {
		in, out := n.sizes[l], n.sizes[l+1]
		w := n.params[n.wOff[l]:]
		b := n.params[n.bOff[l]:]
		a := make([]float64, out)
		for j := 0; j < out; j++ {
			sum := b[j]
			for i := 0; i < in; i++ {
				sum += acts[l][i] * w[i*out+j]
			}
			if l < n.layers()-1 && sum < 0 {
				sum = 0 // ReLU
			}
			a[j] = sum
		}
		acts[l+1] = a
	}
	return acts
}

func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, v := range logits {
		if v > max {
			max = v
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(v - max)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// lossAndGrads returns the mean cross-entropy loss over the batch and the
// mean parameter gradient as a flat vector.
func (n *network) lossAndGrads(batch continual.Batch) (float64, []float64) {
	grads := make([]float64, len(n.params))
	if batch.Len() == 0 {
		return 0, grads
	}
	scale := 1 / float64(batch.Len())

	var loss float64
	for e := 0; e < batch.Len(); e++ {
		acts := n.forward(batch.X[e])
		probs := softmax(acts[n.layers()])

		target := continual.ClassOf(batch.Y[e])
		loss -= math.Log(math.Max(probs[target], 1e-12))

		// delta at the output layer for softmax cross-entropy.
		delta := make([]float64, len(probs))
		for j := range probs {
			delta[j] = (probs[j] - batch.Y[e][j]) * scale
		}

		for l := n.layers() - 1; l >= 0; l-- {
			in, out := n.sizes[l], n.sizes[l+1]
			w := n.params[n.wOff[l]:]
			gw := grads[n.wOff[l]:]
			gb := grads[n.bOff[l]:]
			prev := acts[l]

			for j := 0; j < out; j++ {
				gb[j] += delta[j]
				for i := 0; i < in; i++ {
					gw[i*out+j] += prev[i] * delta[j]
				}
			}
			if l == 0 {
				break
			}
			next := make([]float64, in)
			for i := 0; i < in; i++ {
				if prev[i] <= 0 {
					continue // ReLU gate
				}
				var sum float64
				for j := 0; j < out; j++ {
					sum += w[i*out+j] * delta[j]
				}
				next[i] = sum
			}
			delta = next
		}
	}
	return loss * scale, grads
}

// squaredNormGrads returns the mean absolute gradient of the squared L2
// norm of the logits over the batch, per parameter. Used by the MAS
// importance tracker.
func (n *network) squaredNormGrads(batch continual.Batch) []float64 {
	importance := make([]float64, len(n.params))
	if batch.Len() == 0 {
		return importance
	}

	for e := 0; e < batch.Len(); e++ {
		acts := n.forward(batch.X[e])
		logits := acts[n.layers()]

		// d(||f||^2)/d logit_j = 2 * logit_j
		delta := make([]float64, len(logits))
		for j, v := range logits {
			delta[j] = 2 * v
		}

		grads := make([]float64, len(n.params))
		for l := n.layers() - 1; l >= 0; l-- {
			in, out := n.sizes[l], n.sizes[l+1]
			w := n.params[n.wOff[l]:]
			gw := grads[n.wOff[l]:]
			gb := grads[n.bOff[l]:]
			prev := acts[l]
			for j := 0; j < out; j++ {
				gb[j] += delta[j]
				for i := 0; i < in; i++ {
					gw[i*out+j] += prev[i] * delta[j]
				}
			}
			if l == 0 {
				break
			}
			next := make([]float64, in)
			for i := 0; i < in; i++ {
				if prev[i] <= 0 {
					continue
				}
				var sum float64
				for j := 0; j < out; j++ {
					sum += w[i*out+j] * delta[j]
				}
				next[i] = sum
			}
			delta = next
		}
		for i, g := range grads {
			importance[i] += math.Abs(g)
		}
	}
	scale := 1 / float64(batch.Len())
	for i := range importance {
		importance[i] *= scale
	}
	return importance
}

// predict returns the argmax class for one input.
func (n *network) predict(x []float64) int {
	acts := n.forward(x)
	logits := acts[n.layers()]
	best := 0
	for j, v := range logits {
		if v > logits[best] {
			best = j
		}
	}
	return best
}
