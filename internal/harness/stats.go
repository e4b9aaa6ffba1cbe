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

package harness

import (
	"math"
	"sort"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Summary aggregates the measured samples of one stage. Failed samples
// count toward Failures but contribute nothing to the timing figures.
type Summary struct {
	Stage    string        `json:"stage"`
	Count    int           `json:"count"`
	Failures int           `json:"failures"`
	Min      time.Duration `json:"min_ns"`
	Max      time.Duration `json:"max_ns"`
	Mean     time.Duration `json:"mean_ns"`
	Stddev   time.Duration `json:"stddev_ns"`
	P50      time.Duration `json:"p50_ns"`
	P99      time.Duration `json:"p99_ns"`
}

// Summarize folds samples into one Summary per stage, ordered by stage
// name. Percentiles come from a DDSketch with 1% relative accuracy; min,
// max, mean and stddev are exact.
func Summarize(samples []Sample) []Summary {
	byStage := make(map[string][]Sample)
	for _, s := range samples {
		byStage[s.Stage] = append(byStage[s.Stage], s)
	}

	names := make([]string, 0, len(byStage))
	for name := range byStage {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Summary, 0, len(names))
	for _, name := range names {
		out = append(out, summarizeStage(name, byStage[name]))
	}
	return out
}

func summarizeStage(name string, samples []Sample) Summary {
	sum := Summary{Stage: name, Count: len(samples)}

	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		// Construction only fails on an invalid accuracy constant.
		panic(err)
	}

	var total float64
	var n int
	for _, s := range samples {
		if s.Failed {
			sum.Failures++
			continue
		}
		d := s.Duration
		if n == 0 || d < sum.Min {
			sum.Min = d
		}
		if d > sum.Max {
			sum.Max = d
		}
		total += float64(d)
		n++
		_ = sketch.Add(float64(d))
	}
	if n == 0 {
		return sum
	}

	mean := total / float64(n)
	sum.Mean = time.Duration(mean)

	var sq float64
	for _, s := range samples {
		if s.Failed {
			continue
		}
		diff := float64(s.Duration) - mean
		sq += diff * diff
	}
	sum.Stddev = time.Duration(math.Sqrt(sq / float64(n)))

	if p50, err := sketch.GetValueAtQuantile(0.5); err == nil {
		sum.P50 = time.Duration(p50)
	}
	if p99, err := sketch.GetValueAtQuantile(0.99); err == nil {
		sum.P99 = time.Duration(p99)
	}
	return sum
}
