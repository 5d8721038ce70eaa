// Package embedding turns text into fixed-length vectors for similarity search.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxTextLength is the number of runes sent to a model; longer text is cut.
const MaxTextLength = 10000

var (
	ErrEmptyText         = errors.New("text must not be blank")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Generator computes an embedding for one piece of text.
// Every vector it returns has Dimension() elements.
type Generator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Truncate returns at most max runes of text.
func Truncate(text string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}

// prepare rejects blank input and applies MaxTextLength.
func prepare(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	return Truncate(text, MaxTextLength), nil
}

func checkDimension(vec []float32, want int) error {
	if len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}
