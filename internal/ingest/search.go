// Copyright (C) 2025 Zinc Labs Inc.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package ingest

import "strings"

// TextColumns returns the names of all string-typed fields in schema order.
func (s *Schema) TextColumns() []string {
	var names []string
	for _, f := range s.fields {
		if f.Type == TypeString {
			names = append(names, f.Name)
		}
	}
	return names
}

// CountOccurrences returns the total number of non-overlapping occurrences
// of needle across every string column of rows [start, end). Bounds are
// clamped to the batch; an empty needle counts as zero.
func (b *RecordBatch) CountOccurrences(needle string, start, end int) int64 {
	if needle == "" {
		return 0
	}
	start = max(start, 0)
	end = min(end, b.rows)

	var total int64
	for _, col := range b.cols {
		if col.typ != TypeString {
			continue
		}
		for i := start; i < end; i++ {
			if col.valid[i] {
				total += int64(strings.Count(col.strs[i], needle))
			}
		}
	}
	return total
}
