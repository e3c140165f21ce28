package runner

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/tradecell/tradecell/internal/feed"
)

// ReplayFile streams a JSONL tick file through the runner, one tick per
// line: {"position_id": "...", "symbol": "...", "price": "150.00",
// "timestamp": "2026-08-28T14:30:00Z"}. Lines that fail to decode are
// logged and skipped; a full queue retries by blocking.
func ReplayFile(r *Runner, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open ticks file: %w", err)
	}
	defer f.Close()

	submitted := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var tick feed.Tick
		if err := json.Unmarshal(raw, &tick); err != nil {
			log.Warn().Int("line", line).Err(err).Msg("skipping malformed tick")
			continue
		}
		// Block rather than drop during replay: ordering per position
		// matters more than throughput here.
		r.queue <- Task{Tick: tick}
		submitted++
	}
	if err := scanner.Err(); err != nil {
		return submitted, fmt.Errorf("read ticks file: %w", err)
	}
	return submitted, nil
}
