package directory

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// RequestTimeout bounds a single sync HTTP request.
const RequestTimeout = 30 * time.Second

// Syncer periodically fetches an operator-supplied node/BBS list over
// HTTP and rewrites the alias book's backing file from it.
type Syncer struct {
	url        string
	targetFile string
	book       *AliasBook
	logger     *log.Logger
	interval   time.Duration
	httpClient *http.Client

	lastSync time.Time
}

// NewSyncer creates a Syncer. If url is empty the syncer does nothing when
// started; interval <= 0 defaults to 24 hours.
func NewSyncer(url, targetFile string, book *AliasBook, interval time.Duration, logger *log.Logger) *Syncer {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Syncer{
		url:        url,
		targetFile: targetFile,
		book:       book,
		logger:     logger,
		interval:   interval,
		httpClient: &http.Client{Timeout: RequestTimeout},
	}
}

// Start runs an immediate sync followed by periodic syncs until ctx is
// cancelled. It is a no-op (returns immediately) if no URL was configured.
func (s *Syncer) Start(ctx context.Context) {
	if s.url == "" {
		return
	}

	if err := s.SyncNow(ctx); err != nil && s.logger != nil {
		s.logger.Printf("initial alias sync failed: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncNow(ctx); err != nil && s.logger != nil {
				s.logger.Printf("alias sync failed: %v", err)
			}
		}
	}
}

// SyncNow performs one fetch-parse-write-reload cycle immediately.
func (s *Syncer) SyncNow(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory: sync HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	lines, err := parseNodeCSV(resp.Body)
	if err != nil {
		return err
	}

	if err := os.WriteFile(s.targetFile, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("directory: failed to write alias file %s: %w", s.targetFile, err)
	}

	s.lastSync = time.Now()
	if s.book != nil {
		return s.book.Load()
	}
	return nil
}

// parseNodeCSV parses a "name,callsign,..." CSV (extra columns ignored)
// into alias-file lines "name=CALLSIGN".
func parseNodeCSV(r io.Reader) ([]string, error) {
	csvReader := csv.NewReader(r)
	csvReader.FieldsPerRecord = -1

	var lines []string
	lineNumber := 0
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("directory: error reading node list at line %d: %w", lineNumber, err)
		}
		lineNumber++
		if lineNumber == 1 {
			continue // header row
		}
		if len(record) < 2 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(record[0]))
		call := strings.ToUpper(strings.TrimSpace(record[1]))
		if name == "" || call == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s=%s", name, call))
	}
	return lines, nil
}

// LastSync reports when the most recent successful sync completed, the
// zero Time if none has run yet.
func (s *Syncer) LastSync() time.Time { return s.lastSync }
