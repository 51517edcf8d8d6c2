// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package adapter lets a generic training harness drive a pretrained
// transformer (BERT, GPT-2, OpenAI GPT, XLNet or XLM).
//
// # Overview
//
// The harness hands the adapter a [batch, seq] tensor of token ids and gets
// back Activations: the last hidden state, the pooled output (BERT), and
// the hidden states and attentions of every layer. A training step is split
// in two: BeginUpdate runs the forward pass and returns a Backprop callback
// that the harness calls once it has the gradient of its loss with respect
// to the activations.
//
// # Basic Usage
//
//	a, err := adapter.FromPretrained("bert-base-uncased")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Inference
//	acts, err := a.Predict(ids)
//
//	// Training
//	dropout := float32(0.1)
//	acts, backprop, err := a.BeginUpdate(ids, &dropout)
//	dY := &adapter.Activations{LastHidden: lossGradient(acts.LastHidden)}
//	err = backprop(dY, &adapter.OptimizerConfig{
//	    LR:          2e-5,
//	    Beta1:       0.9,
//	    Beta2:       0.999,
//	    Eps:         1e-8,
//	    MaxGradNorm: 1,
//	})
//
// The first Backprop call that carries an OptimizerConfig creates an AdamW
// optimizer and a warmup-linear schedule (50 warmup steps, 500 total);
// later calls reuse them.
//
// # Pretrained storage
//
// A name is a model directory, a directory under $BORN_PRETRAINED_HOME
// (default ~/.cache/born/pretrained), or a Hugging Face Hub repository id.
// Hub repositories are downloaded into the same directory; $HF_TOKEN
// authenticates and HF_HUB_OFFLINE=1 disables downloads. A model directory
// holds config.json and model.safetensors in the Hugging Face layout.
//
// # Thread Safety
//
// An Adapter is not safe for concurrent use. Predict and BeginUpdate switch
// the shared model between training and evaluation mode.
package adapter
