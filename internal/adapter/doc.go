// Package adapter drives a pretrained transformer with the conventions of a
// generic training harness.
//
// The harness speaks in integer token batches, Activations, an optional
// dropout rate that marks a training step, and a completion callback
// (Backprop) that receives output gradients together with an optimizer
// configuration. The adapter translates those into forward passes, tape
// recording, backprop into parameter gradients and optimizer steps on the
// wrapped model.
//
//	a, err := adapter.FromPretrained("bert-base-uncased")
//	acts, backprop, err := a.BeginUpdate(ids, &dropout)
//	// ... compute dY from acts ...
//	err = backprop(dY, &adapter.OptimizerConfig{LR: 1e-3, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, MaxGradNorm: 1})
//
// An Adapter is not safe for concurrent use.
package adapter
