package autodiff

import (
	"fmt"

	"github.com/born-ml/pretrained/internal/autodiff/ops"
	"github.com/born-ml/pretrained/internal/tensor"
)

// GradientTape records operations during the forward pass and computes
// gradients during the backward pass using reverse-mode automatic differentiation.
//
// Usage:
//
//	tape := NewGradientTape()
//	tape.StartRecording()
//	// ... perform operations ...
//	gradients := tape.Backward(outputs, outputGrads, backend)
type GradientTape struct {
	operations []ops.Operation // recorded operations, in execution order
	recording  bool
}

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]ops.Operation, 0, 64),
	}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *GradientTape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
func (t *GradientTape) IsRecording() bool {
	return t.recording
}

// Record adds an operation to the tape if it is recording.
func (t *GradientTape) Record(op ops.Operation) {
	if t.recording {
		t.operations = append(t.operations, op)
	}
}

// Clear resets the tape, removing all recorded operations.
// Recording state is preserved.
func (t *GradientTape) Clear() {
	t.operations = t.operations[:0]
}

// Snapshot returns a stopped tape holding a copy of the recorded operations.
// Later recording on t does not affect the snapshot.
func (t *GradientTape) Snapshot() *GradientTape {
	operations := make([]ops.Operation, len(t.operations))
	copy(operations, t.operations)
	return &GradientTape{operations: operations}
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	return len(t.operations)
}

// Backward computes gradients for every tensor reachable from outputs by
// walking the tape in reverse.
//
// outputs[i] is seeded with outputGrads[i]; the same output given twice has
// its seeds summed. Gradients of tensors used several times accumulate.
// Returns a map from RawTensor to its accumulated gradient, including the seeds.
func (t *GradientTape) Backward(outputs, outputGrads []*tensor.RawTensor, backend tensor.Backend) (map[*tensor.RawTensor]*tensor.RawTensor, error) {
	if len(outputs) != len(outputGrads) {
		return nil, fmt.Errorf("backward: %d outputs but %d gradients", len(outputs), len(outputGrads))
	}

	grads := make(map[*tensor.RawTensor]*tensor.RawTensor, len(outputs))
	for i, out := range outputs {
		g := outputGrads[i]
		if !g.Shape().Equal(out.Shape()) {
			return nil, fmt.Errorf("backward: gradient shape %v does not match output shape %v", g.Shape(), out.Shape())
		}
		accumulate(grads, out, g, backend)
	}

	// Gradient operations must not end up on the tape.
	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		outputGrad, ok := grads[op.Output()]
		if !ok {
			continue
		}
		inputGrads := op.Backward(outputGrad, backend)
		for j, input := range op.Inputs() {
			if j >= len(inputGrads) || inputGrads[j] == nil {
				continue
			}
			accumulate(grads, input, inputGrads[j], backend)
		}
	}

	return grads, nil
}

func accumulate(grads map[*tensor.RawTensor]*tensor.RawTensor, t, g *tensor.RawTensor, backend tensor.Backend) {
	if existing, ok := grads[t]; ok {
		grads[t] = backend.Add(existing, g)
		return
	}
	grads[t] = g
}
