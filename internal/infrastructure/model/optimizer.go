package model

import (
	"fmt"
	"math"

	"github.com/hopo55/CL-Papers/internal/domain/continual"
)

// Optimizer applies a gradient to a flat parameter vector. Reset clears any
// internal accumulators; it is called between tasks.
type Optimizer interface {
	Apply(params, grads []float64, lr float64)
	Reset()
	Name() string
}

// Optimizers lists every recognized optimizer name.
var Optimizers = []string{"SGD", "MOMENTUM", "ADAM"}

// NewOptimizer creates an optimizer by name for a parameter vector of the
// given dimension.
func NewOptimizer(name string, dim int) (Optimizer, error) {
	switch name {
	case "SGD":
		return &sgd{}, nil
	case "MOMENTUM":
		return &momentum{factor: 0.9, velocity: make([]float64, dim)}, nil
	case "ADAM":
		return &adam{beta1: 0.9, beta2: 0.999, eps: 1e-8, m: make([]float64, dim), v: make([]float64, dim)}, nil
	}
	return nil, fmt.Errorf("%w: %q (valid: %v)", continual.ErrUnknownOptimizer, name, Optimizers)
}

type sgd struct{}

func (o *sgd) Apply(params, grads []float64, lr float64) {
	for i := range params {
		params[i] -= lr * grads[i]
	}
}

func (o *sgd) Reset()       {}
func (o *sgd) Name() string { return "SGD" }

type momentum struct {
	factor   float64
	velocity []float64
}

func (o *momentum) Apply(params, grads []float64, lr float64) {
	for i := range params {
		o.velocity[i] = o.factor*o.velocity[i] + grads[i]
		params[i] -= lr * o.velocity[i]
	}
}

func (o *momentum) Reset() {
	for i := range o.velocity {
		o.velocity[i] = 0
	}
}

func (o *momentum) Name() string { return "MOMENTUM" }

type adam struct {
	beta1, beta2, eps float64
	m, v              []float64
	t                 int
}

func (o *adam) Apply(params, grads []float64, lr float64) {
	o.t++
	c1 := 1 - math.Pow(o.beta1, float64(o.t))
	c2 := 1 - math.Pow(o.beta2, float64(o.t))
	for i := range params {
		o.m[i] = o.beta1*o.m[i] + (1-o.beta1)*grads[i]
		o.v[i] = o.beta2*o.v[i] + (1-o.beta2)*grads[i]*grads[i]
		params[i] -= lr * (o.m[i] / c1) / (math.Sqrt(o.v[i]/c2) + o.eps)
	}
}

func (o *adam) Reset() {
	for i := range o.m {
		o.m[i] = 0
		o.v[i] = 0
	}
	o.t = 0
}

func (o *adam) Name() string { return "ADAM" }
