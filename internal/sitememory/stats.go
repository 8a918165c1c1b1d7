package sitememory

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by update operations that require an existing
// record rather than creating one (matching update_access_stats' "no entry,
// give up" behavior in the source system, as opposed to the pattern/
// selector/characteristics updaters, which create on first write).
var ErrNotFound = errors.New("site memory record not found")

var timingMetricKeys = map[string]bool{
	"load_time":      true,
	"dom_ready_time": true,
	"response_time":  true,
}

// UpdateAccessStats bumps a site's access count and folds the latest
// outcome into its success rate via an exponential moving average
// (alpha=0.1), and merges any supplied performance samples — keeping a
// rolling window of the last 100 for recognized timing keys and tracking
// their running average alongside.
func (s *Store) UpdateAccessStats(siteURL string, success bool, performanceData map[string]float64) error {
	rec, err := s.Get(siteURL)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotFound
	}

	rec.AccessCount++
	rec.LastAccessed = time.Now()

	const alpha = 0.1
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	rec.SuccessRate = (1-alpha)*rec.SuccessRate + alpha*outcome

	if len(performanceData) > 0 {
		if rec.PerformanceMetrics == nil {
			rec.PerformanceMetrics = map[string]interface{}{}
		}
		for key, value := range performanceData {
			if timingMetricKeys[key] {
				samples := append(floatSliceFrom(rec.PerformanceMetrics[key]), value)
				if len(samples) > 100 {
					samples = samples[len(samples)-100:]
				}
				rec.PerformanceMetrics[key] = samples
				rec.PerformanceMetrics[key+"_avg"] = average(samples)
			} else {
				rec.PerformanceMetrics[key] = value
			}
		}
	}

	return s.Save(*rec)
}

// UpdateExtractionPatterns merges patterns into a site's learned extraction
// strategy, creating a fresh record if the site has never been seen.
func (s *Store) UpdateExtractionPatterns(siteURL string, patterns map[string]interface{}) error {
	rec, err := s.getOrNew(siteURL)
	if err != nil {
		return err
	}
	rec.ExtractionPatterns = mergeMaps(rec.ExtractionPatterns, patterns)
	return s.Save(*rec)
}

// UpdateTimingPatterns merges timing observations into a site's record.
func (s *Store) UpdateTimingPatterns(siteURL string, timing map[string]interface{}) error {
	rec, err := s.getOrNew(siteURL)
	if err != nil {
		return err
	}
	rec.TimingPatterns = mergeMaps(rec.TimingPatterns, timing)
	return s.Save(*rec)
}

// UpdateOptimalSelectors merges newer selectors over older ones for the
// given site.
func (s *Store) UpdateOptimalSelectors(siteURL string, selectors map[string]string) error {
	rec, err := s.getOrNew(siteURL)
	if err != nil {
		return err
	}
	if rec.OptimalSelectors == nil {
		rec.OptimalSelectors = map[string]string{}
	}
	for k, v := range selectors {
		rec.OptimalSelectors[k] = v
	}
	return s.Save(*rec)
}

// UpdateSiteCharacteristics merges observed site characteristics (e.g.
// detected anti-bot vendor, rendering framework) into a site's record.
func (s *Store) UpdateSiteCharacteristics(siteURL string, characteristics map[string]interface{}) error {
	rec, err := s.getOrNew(siteURL)
	if err != nil {
		return err
	}
	rec.SiteCharacteristics = mergeMaps(rec.SiteCharacteristics, characteristics)
	return s.Save(*rec)
}

func (s *Store) getOrNew(siteURL string) (*Record, error) {
	rec, err := s.Get(siteURL)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &Record{SiteURL: siteURL, LastAccessed: time.Now()}
	}
	return rec, nil
}

// CleanupExpired removes records whose last_accessed is older than the
// store's TTL and reports how many rows were deleted.
func (s *Store) CleanupExpired() (int64, error) {
	now := float64(time.Now().UnixNano()) / 1e9

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM site_memory WHERE ? - last_accessed > ?`, now, s.ttl.Seconds())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired site memories: %w", err)
	}
	return res.RowsAffected()
}

// Summary is the overall site memory population snapshot.
type Summary struct {
	TotalSites       int64
	AvgSuccessRate   float64
	AvgAccessCount   float64
	MostRecentAccess time.Time
	TotalAccesses    int64
	TTL              time.Duration
}

// Stats reports aggregate statistics across every tracked site.
func (s *Store) Stats() (Summary, error) {
	var (
		totalSites                          int64
		avgSuccessRate, avgAccessCount       float64
		mostRecentAccess                    float64
		totalAccesses                       int64
	)

	row := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(AVG(success_rate), 0), COALESCE(AVG(access_count), 0),
		       COALESCE(MAX(last_accessed), 0), COALESCE(SUM(access_count), 0)
		FROM site_memory`)
	if err := row.Scan(&totalSites, &avgSuccessRate, &avgAccessCount, &mostRecentAccess, &totalAccesses); err != nil {
		return Summary{}, fmt.Errorf("get site memory stats: %w", err)
	}

	return Summary{
		TotalSites:       totalSites,
		AvgSuccessRate:   avgSuccessRate,
		AvgAccessCount:   avgAccessCount,
		MostRecentAccess: unixToTime(mostRecentAccess),
		TotalAccesses:    totalAccesses,
		TTL:              s.ttl,
	}, nil
}

// TopSite is one row of a Top() ranking.
type TopSite struct {
	SiteURL      string
	AccessCount  int64
	SuccessRate  float64
	LastAccessed time.Time
}

var topSortFields = map[string]bool{
	"access_count": true,
	"success_rate": true,
	"last_accessed": true,
}

// Top returns up to limit sites ranked by sortBy (one of "access_count",
// "success_rate", "last_accessed"); an unrecognized sortBy falls back to
// "access_count" rather than erroring, matching the source system's
// silently-defensive field whitelist.
func (s *Store) Top(limit int, sortBy string) ([]TopSite, error) {
	sortField := "access_count"
	if topSortFields[sortBy] {
		sortField = sortBy
	}

	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT site_url, access_count, success_rate, last_accessed
		FROM site_memory ORDER BY %s DESC LIMIT ?`, sortField), limit)
	if err != nil {
		return nil, fmt.Errorf("get top sites: %w", err)
	}
	defer rows.Close()

	var sites []TopSite
	for rows.Next() {
		var site TopSite
		var lastAccessed float64
		if err := rows.Scan(&site.SiteURL, &site.AccessCount, &site.SuccessRate, &lastAccessed); err != nil {
			return nil, fmt.Errorf("scan top site: %w", err)
		}
		site.LastAccessed = unixToTime(lastAccessed)
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// SearchByPattern scans every tracked site's extraction patterns for one
// whose value under key equals value, returning the matching site URLs.
// A full-table scan, same as the source system — this is an operator
// lookup, not a hot path.
func (s *Store) SearchByPattern(key string, value interface{}) ([]string, error) {
	wantJSON, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal search value: %w", err)
	}

	rows, err := s.db.Query(`SELECT site_url, extraction_patterns FROM site_memory`)
	if err != nil {
		return nil, fmt.Errorf("search sites by pattern: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var siteURL, patternsJSON string
		if err := rows.Scan(&siteURL, &patternsJSON); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		if patternsJSON == "" {
			continue
		}
		var patterns map[string]json.RawMessage
		if err := json.Unmarshal([]byte(patternsJSON), &patterns); err != nil {
			continue
		}
		if raw, ok := patterns[key]; ok && string(raw) == string(wantJSON) {
			matches = append(matches, siteURL)
		}
	}
	return matches, rows.Err()
}

func mergeMaps(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = map[string]interface{}{}
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func floatSliceFrom(v interface{}) []float64 {
	switch vals := v.(type) {
	case []float64:
		return vals
	case []interface{}:
		out := make([]float64, 0, len(vals))
		for _, raw := range vals {
			if f, ok := raw.(float64); ok {
				out = append(out, f)
			}
		}
		return out
	default:
		return nil
	}
}

func average(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
