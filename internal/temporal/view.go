// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package temporal

import (
	"context"
	"fmt"
)

// TokenCounter measures the token cost of a string under whatever model
// tokenizer the caller (the context assembler) has configured.
type TokenCounter func(text string) int

// ViewEntry is one element of a reconstructed view: either a distillation
// summary standing in for a compressed range, or an original message.
type ViewEntry struct {
	IsDistillation bool
	Distillation   *Distillation
	Message        *Message
}

// BuildView returns the smallest prefix+suffix covering of history that
// fits budgetTokens: the highest-level distillation prefix covering the
// oldest uncompressed range, followed by every level-0 message after that
// range's end, in strict temporal order. Escalated reports whether even
// the highest available distillation level still exceeds budget.
func (r *Repo) BuildView(ctx context.Context, budgetTokens int, count TokenCounter) (view []ViewEntry, escalated bool, err error) {
	maxLevel, err := r.MaxLevel(ctx)
	if err != nil {
		return nil, false, err
	}

	for level := maxLevel; level >= 1; level-- {
		dists, err := r.DistillationsAtLevel(ctx, level)
		if err != nil {
			return nil, false, err
		}
		if len(dists) == 0 {
			continue
		}

		tail, err := r.Tail(ctx, dists[len(dists)-1].RangeEndID)
		if err != nil {
			return nil, false, err
		}

		candidate := assembleView(dists, tail)
		if viewTokens(candidate, count) <= budgetTokens {
			return candidate, false, nil
		}
	}

	// No distillation fits (or none exist): fall back to the full
	// level-0 tail from the beginning.
	tail, err := r.Tail(ctx, "")
	if err != nil {
		return nil, false, err
	}
	candidate := assembleView(nil, tail)
	if viewTokens(candidate, count) > budgetTokens && maxLevel > 0 {
		escalated = true
	}
	return candidate, escalated, nil
}

func assembleView(dists []Distillation, tail []Message) []ViewEntry {
	view := make([]ViewEntry, 0, len(dists)+len(tail))
	for i := range dists {
		d := dists[i]
		view = append(view, ViewEntry{IsDistillation: true, Distillation: &d})
	}
	for i := range tail {
		m := tail[i]
		view = append(view, ViewEntry{Message: &m})
	}
	return view
}

func viewTokens(view []ViewEntry, count TokenCounter) int {
	total := 0
	for _, e := range view {
		if e.IsDistillation {
			total += count(e.Distillation.Body)
		} else {
			total += count(e.Message.Content)
		}
	}
	return total
}

// FormatEntry renders a ViewEntry as assembler-ready text, tagging
// distillation stand-ins so the model can tell compressed history apart
// from verbatim messages.
func FormatEntry(e ViewEntry) string {
	if e.IsDistillation {
		return fmt.Sprintf("[distilled %s..%s]\n%s", e.Distillation.RangeStartID, e.Distillation.RangeEndID, e.Distillation.Body)
	}
	return e.Message.Content
}
