// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tokenizer turns text into the token id batches the adapter
// consumes.
//
// Example usage:
//
//	tok, err := tokenizer.ForModel(dir, "bert")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ids, err := tokenizer.EncodeBatch(tok, []string{"Hello, world!"}, 128)
package tokenizer

import (
	"github.com/born-ml/pretrained/internal/tokenizer"
	"github.com/born-ml/pretrained/tensor"
)

// Tokenizer is the core interface for text tokenization.
type Tokenizer = tokenizer.Tokenizer

// WordPieceOptions configures a WordPiece vocabulary.
type WordPieceOptions = tokenizer.WordPieceOptions

// ForModel returns the tokenizer of a model family stored in dir.
func ForModel(dir, family string) (Tokenizer, error) {
	return tokenizer.ForModel(dir, family)
}

// NewTikToken creates a BPE tokenizer with the named tiktoken encoding,
// such as "r50k_base" for GPT-2.
func NewTikToken(encodingName string) (Tokenizer, error) {
	tok, err := tokenizer.NewTikToken(encodingName)
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// LoadWordPiece reads a vocab.txt WordPiece vocabulary.
func LoadWordPiece(path string, opts WordPieceOptions) (Tokenizer, error) {
	tok, err := tokenizer.LoadWordPiece(path, opts)
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// EncodeBatch encodes texts into an Int64 [len(texts), seq] tensor padded
// with the pad token and truncated to maxLen.
func EncodeBatch(tok Tokenizer, texts []string, maxLen int) (*tensor.RawTensor, error) {
	return tokenizer.EncodeBatch(tok, texts, maxLen)
}
