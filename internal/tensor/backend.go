package tensor

// Backend defines the operations the model families need from a compute
// backend. All operations return new tensors; inputs are never modified.
//
// Implementations:
//   - cpu.Backend: pure Go, matrix products through gonum BLAS
//   - autodiff.AutodiffBackend: decorator that records a GradientTape
type Backend interface {
	// Element-wise binary operations with NumPy broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// MulScalar multiplies every element by s.
	MulScalar(x *RawTensor, s float32) *RawTensor

	// MatMul performs 2D matrix multiplication: [M, K] @ [K, N] -> [M, N].
	MatMul(a, b *RawTensor) *RawTensor

	// BatchMatMul multiplies the two trailing dimensions, with identical
	// leading (batch) dimensions: [..., M, K] @ [..., K, N] -> [..., M, N].
	BatchMatMul(a, b *RawTensor) *RawTensor

	// Shape operations.
	Reshape(x *RawTensor, newShape Shape) *RawTensor
	Transpose(x *RawTensor, axes ...int) *RawTensor
	// Slice selects [start, end) along dim.
	Slice(x *RawTensor, dim, start, end int) *RawTensor

	// Activations and normalisation (last dimension).
	Softmax(x *RawTensor) *RawTensor
	GELU(x *RawTensor) *RawTensor
	Tanh(x *RawTensor) *RawTensor
	LayerNorm(x, gamma, beta *RawTensor, eps float32) *RawTensor

	// Embedding looks up rows of weight [V, D] for integer indices [...] -> [..., D].
	Embedding(weight, indices *RawTensor) *RawTensor

	// Clamp limits every element to [lo, hi]. Integer tensors stay integer.
	Clamp(x *RawTensor, lo, hi float64) *RawTensor

	// Cast converts to a different data type.
	Cast(x *RawTensor, dtype DataType) *RawTensor

	// Name returns the backend name.
	Name() string
}
