// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend for tensor operations.
//
// # Overview
//
// The backend implements the operations pretrained transformers are built
// from: broadcast elementwise arithmetic, matrix products (through gonum's
// BLAS), reshapes and transposes, softmax, GELU, tanh, layer normalisation
// and embedding lookup. All floating point computation is float32.
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. A trainable backend is not:
// its gradient tape is shared by every operation run on it.
package cpu
