////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package push delivers best-effort push notifications to device tokens.
package push

import (
	"context"
	"strings"

	jww "github.com/spf13/jwalterweatherman"
)

// MaxBatch is the largest number of tokens sent in one provider request.
const MaxBatch = 100

// Dispatcher sends one notification to every token. Delivery is best effort:
// a returned error describes what failed but callers on the messaging path
// only log it.
type Dispatcher interface {
	Send(ctx context.Context, tokens []string, title, body string,
		data map[string]string) error
}

// Batches splits tokens into groups of at most size tokens. Empty and
// duplicate tokens are dropped, and order is otherwise kept. A size outside
// (0, MaxBatch] selects MaxBatch.
func Batches(tokens []string, size int) [][]string {
	if size <= 0 || size > MaxBatch {
		size = MaxBatch
	}

	seen := make(map[string]struct{}, len(tokens))
	var batches [][]string
	var current []string
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}

		current = append(current, t)
		if len(current) == size {
			batches = append(batches, current)
			current = nil
		}
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// Nop drops every notification. It is used when push is disabled.
type Nop struct{}

// Send logs and discards the notification.
func (Nop) Send(_ context.Context, tokens []string, title, _ string,
	_ map[string]string) error {
	jww.DEBUG.Printf("[PUSH] Push disabled, dropping %q for %d tokens",
		title, len(tokens))
	return nil
}
