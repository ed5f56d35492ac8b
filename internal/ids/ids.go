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

// Package ids generates time-sortable, type-prefixed identifiers.
//
// IDs are built on UUIDv7 (RFC 9562), which embeds a 48-bit millisecond
// timestamp in its most significant bits followed by random bits. Hex
// encoding of a UUIDv7 preserves byte order, so lexicographic string
// comparison of two IDs of the same prefix equals their creation order —
// the property the temporal log and distillation ranges depend on.
package ids

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind identifies the entity an ID was minted for.
type Kind string

const (
	KindMessage     Kind = "msg"
	KindDistillation Kind = "dst"
	KindTask        Kind = "tsk"
	KindWorker      Kind = "wrk"
	KindEntry       Kind = "ltm"
	KindSession     Kind = "ses"
)

// New mints a new time-sortable ID of the given kind: "<kind>_<uuidv7>".
func New(k Kind) string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the global random source errors; fall back
		// to a V4 id rather than panicking — it loses sortability, not
		// validity, and this path is never exercised in practice.
		id = uuid.New()
	}
	return fmt.Sprintf("%s_%s", k, id.String())
}

// KindOf extracts the type prefix (the text before the first '_') from an ID
// minted by New, or "" if the ID has no '_'. The prefix is not checked
// against the known Kind constants.
func KindOf(id string) Kind {
	i := strings.IndexByte(id, '_')
	if i < 0 {
		return ""
	}
	return Kind(id[:i])
}

// Less reports whether a sorts strictly before b under the lexicographic
// order that equals temporal order for IDs of the same kind.
func Less(a, b string) bool { return a < b }
