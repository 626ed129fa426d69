package usage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/classics-lab/scriptorium/services/providers"
	"go.uber.org/zap"
)

// Entry types in the ledger.
const (
	EntryCall       = "call"
	EntryComparison = "comparison"
)

// Entry is one ledger line. Call entries carry the token/cost/timing
// fields; comparison entries instead carry per-target Results.
type Entry struct {
	Type       string    `json:"type"`
	Provider   string    `json:"provider,omitempty"`
	Model      string    `json:"model,omitempty"`
	Purpose    string    `json:"purpose"`
	TokensIn   int       `json:"tokens_in,omitempty"`
	TokensOut  int       `json:"tokens_out,omitempty"`
	CostUSD    float64   `json:"cost_usd"`
	ElapsedSec float64   `json:"elapsed_sec,omitempty"`
	Results    []Result  `json:"results,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Result is one slot of a comparison entry: either a success record or an
// error message, mirroring the comparison output positionally. Success
// slots always carry their numeric fields, so a free local call is still
// distinguishable from a record that omitted them.
type Result struct {
	Provider   string  `json:"provider,omitempty"`
	Model      string  `json:"model,omitempty"`
	TokensIn   int     `json:"tokens_in"`
	TokensOut  int     `json:"tokens_out"`
	CostUSD    float64 `json:"cost_usd"`
	ElapsedSec float64 `json:"elapsed_sec"`
	Error      string  `json:"error,omitempty"`
}

// Summary aggregates the current calendar month of the ledger.
type Summary struct {
	TotalCalls   int                        `json:"total_calls"`
	TotalCostUSD float64                    `json:"total_cost_usd"`
	ByProvider   map[string]ProviderSummary `json:"by_provider"`
	ByPurpose    map[string]int             `json:"by_purpose"`
}

// ProviderSummary is the per-provider slice of a monthly summary.
type ProviderSummary struct {
	Calls int     `json:"calls"`
	Cost  float64 `json:"cost"`
}

// Tracker appends usage records to a JSON-Lines ledger file. The file is
// append-only and never rewritten in place; summaries re-scan it. Each
// append is a single write so concurrent in-process callers never interleave
// within one record.
type Tracker struct {
	path    string
	enabled bool
	logger  *zap.Logger
	mu      sync.Mutex
	now     func() time.Time
}

// NewTracker creates a tracker writing to path. When enabled is false every
// log call is a no-op; summaries still read whatever the file holds.
func NewTracker(path string, enabled bool, logger *zap.Logger) *Tracker {
	return &Tracker{
		path:    path,
		enabled: enabled,
		logger:  logger,
		now:     time.Now,
	}
}

// Path returns the ledger file path.
func (t *Tracker) Path() string {
	return t.path
}

// LogCall appends one call entry for a successful response. Write failures
// propagate: silently losing accounting could mask a cost overrun.
func (t *Tracker) LogCall(resp *providers.Response, purpose string) error {
	if !t.enabled {
		return nil
	}

	entry := Entry{
		Type:       EntryCall,
		Provider:   resp.Provider,
		Model:      resp.Model,
		Purpose:    purpose,
		TokensIn:   resp.TokensIn,
		TokensOut:  resp.TokensOut,
		CostUSD:    resp.CostUSD,
		ElapsedSec: resp.ElapsedSeconds(),
		Timestamp:  t.now().UTC(),
	}
	return t.append(&entry)
}

// ComparisonSlot is one comparison outcome to be logged: a response or the
// error that replaced it.
type ComparisonSlot struct {
	Response *providers.Response
	Err      error
}

// LogComparison appends one comparison entry whose results mirror the
// comparison output positionally. Errors are serialized as their message
// with no token or cost fields.
func (t *Tracker) LogComparison(purpose string, slots []ComparisonSlot) error {
	if !t.enabled {
		return nil
	}

	results := make([]Result, len(slots))
	for i, slot := range slots {
		if slot.Err != nil {
			results[i] = Result{Error: slot.Err.Error()}
			continue
		}
		results[i] = Result{
			Provider:   slot.Response.Provider,
			Model:      slot.Response.Model,
			TokensIn:   slot.Response.TokensIn,
			TokensOut:  slot.Response.TokensOut,
			CostUSD:    slot.Response.CostUSD,
			ElapsedSec: slot.Response.ElapsedSeconds(),
		}
	}

	entry := Entry{
		Type:      EntryComparison,
		Purpose:   purpose,
		Results:   results,
		Timestamp: t.now().UTC(),
	}
	return t.append(&entry)
}

// append writes one entry as a single line. The marshaled record and its
// newline go out in one Write call on an O_APPEND handle.
func (t *Tracker) append(entry *Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal usage entry: %w", err)
	}
	line = append(line, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open usage ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append usage entry: %w", err)
	}
	return nil
}

// MonthlySummary scans the ledger and aggregates call entries within the
// current calendar month. A missing ledger yields an all-zero summary.
func (t *Tracker) MonthlySummary() (*Summary, error) {
	summary := &Summary{
		ByProvider: make(map[string]ProviderSummary),
		ByPurpose:  make(map[string]int),
	}

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return summary, nil
		}
		return nil, fmt.Errorf("failed to open usage ledger: %w", err)
	}
	defer f.Close()

	now := t.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			// A torn or hand-edited line must not poison the whole
			// summary.
			if t.logger != nil {
				t.logger.Warn("skipping malformed ledger line", zap.Error(err))
			}
			continue
		}

		ts := entry.Timestamp.UTC()
		if ts.Before(monthStart) || !ts.Before(monthEnd) {
			continue
		}
		if entry.Type != EntryCall {
			continue
		}

		summary.TotalCalls++
		summary.TotalCostUSD += entry.CostUSD

		ps := summary.ByProvider[entry.Provider]
		ps.Calls++
		ps.Cost += entry.CostUSD
		summary.ByProvider[entry.Provider] = ps

		summary.ByPurpose[entry.Purpose]++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan usage ledger: %w", err)
	}

	return summary, nil
}
