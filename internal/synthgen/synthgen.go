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

// Package synthgen writes synthetic JSON-lines log fixtures. Output is
// fully determined by the seed, so two runs with the same seed and row
// count produce byte-identical fixtures.
package synthgen

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/google/uuid"
)

// Generator produces synthetic log lines from a seeded source.
type Generator struct {
	rand *rand.Rand
}

// New creates a generator. The same seed always yields the same stream.
func New(seed int64) *Generator {
	return &Generator{rand: rand.New(rand.NewSource(seed))}
}

// Write emits rows JSON lines to w.
func (g *Generator) Write(w io.Writer, rows int, startMillis int64) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := 0; i < rows; i++ {
		if err := enc.Encode(g.logLine(startMillis + int64(i)*1000)); err != nil {
			return fmt.Errorf("write synthetic line %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// WriteFile writes rows lines to a new fixture file at path.
func (g *Generator) WriteFile(path string, rows int, startMillis int64) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create fixture %s: %w", path, err)
	}
	if err := g.Write(fh, rows, startMillis); err != nil {
		_ = fh.Close()
		_ = os.Remove(path)
		return err
	}
	if err := fh.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close fixture %s: %w", path, err)
	}
	return nil
}

// logLine builds one sparse log record. Ordering of the sparse blocks is
// fixed so the rand stream stays aligned across runs.
func (g *Generator) logLine(timestamp int64) map[string]any {
	line := map[string]any{
		"@timestamp": timestamp,
		"message":    g.message(),
		"level":      g.level(),
		"service":    g.service(),
		"host":       fmt.Sprintf("ip-10-%d-%d-%d", g.rand.Intn(256), g.rand.Intn(256), g.rand.Intn(256)),
		"pod":        fmt.Sprintf("pod-%s-%d", g.service(), g.rand.Intn(10)),
		"namespace":  g.pick("backend", "frontend", "jobs", "monitoring"),
	}

	if g.rand.Float32() < 0.3 {
		line["http_method"] = g.pick("GET", "POST", "PUT", "DELETE")
		line["http_status"] = []int{200, 201, 204, 400, 404, 500}[g.rand.Intn(6)]
		line["http_url"] = fmt.Sprintf("/api/v1/users/%d", g.rand.Intn(10000))
	}

	if g.rand.Float32() < 0.25 {
		line["request_id"] = g.deterministicUUID()
		line["user_id"] = fmt.Sprintf("user_%d", g.rand.Intn(100000))
	}

	if g.rand.Float32() < 0.4 {
		line["duration_ms"] = g.rand.Intn(10000)
		line["bytes_sent"] = g.rand.Intn(1000000)
	}

	if g.rand.Float32() < 0.05 {
		line["cache_hit"] = g.rand.Float32() < 0.7
	}

	return line
}

// message keeps the k8s substring in roughly a third of the lines so the
// full-text queries have something to find.
func (g *Generator) message() string {
	return g.pick(
		"Request processed successfully",
		"k8s pod scheduled on node",
		"Database query executed",
		"k8s container restarted after probe failure",
		"Cache miss for key",
		"User authentication successful",
		"k8s node reported disk pressure",
		"Background job started",
		"Payment processed",
	)
}

func (g *Generator) level() string {
	r := g.rand.Intn(100)
	switch {
	case r < 60:
		return "info"
	case r < 80:
		return "warn"
	case r < 90:
		return "error"
	default:
		return "debug"
	}
}

func (g *Generator) service() string {
	return g.pick("api-gateway", "auth-service", "user-service", "payment-service")
}

func (g *Generator) pick(options ...string) string {
	return options[g.rand.Intn(len(options))]
}

// deterministicUUID draws the UUID bytes from the seeded source instead
// of crypto/rand.
func (g *Generator) deterministicUUID() string {
	u, err := uuid.NewRandomFromReader(g.rand)
	if err != nil {
		return uuid.Nil.String()
	}
	return u.String()
}
