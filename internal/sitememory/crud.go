package sitememory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Save inserts or replaces a site's record. created_at is preserved across
// an upsert via COALESCE against the existing row, so repeated saves for
// the same site never lose the original first-seen timestamp.
func (s *Store) Save(rec Record) error {
	sessionData, err := json.Marshal(orEmptyMap(rec.SessionData))
	if err != nil {
		return fmt.Errorf("marshal session_data: %w", err)
	}
	cookies, err := json.Marshal(orEmptyCookies(rec.Cookies))
	if err != nil {
		return fmt.Errorf("marshal cookies: %w", err)
	}
	customData, err := json.Marshal(orEmptyMap(rec.CustomData))
	if err != nil {
		return fmt.Errorf("marshal custom_data: %w", err)
	}
	extractionPatterns, err := json.Marshal(orEmptyMap(rec.ExtractionPatterns))
	if err != nil {
		return fmt.Errorf("marshal extraction_patterns: %w", err)
	}
	performanceMetrics, err := json.Marshal(orEmptyMap(rec.PerformanceMetrics))
	if err != nil {
		return fmt.Errorf("marshal performance_metrics: %w", err)
	}
	timingPatterns, err := json.Marshal(orEmptyMap(rec.TimingPatterns))
	if err != nil {
		return fmt.Errorf("marshal timing_patterns: %w", err)
	}
	siteCharacteristics, err := json.Marshal(orEmptyMap(rec.SiteCharacteristics))
	if err != nil {
		return fmt.Errorf("marshal site_characteristics: %w", err)
	}
	antiDetectionRules, err := json.Marshal(orEmptyMap(rec.AntiDetectionRules))
	if err != nil {
		return fmt.Errorf("marshal anti_detection_rules: %w", err)
	}
	optimalSelectors, err := json.Marshal(orEmptySelectors(rec.OptimalSelectors))
	if err != nil {
		return fmt.Errorf("marshal optimal_selectors: %w", err)
	}

	now := float64(time.Now().UnixNano()) / 1e9
	lastAccessed := now
	if !rec.LastAccessed.IsZero() {
		lastAccessed = float64(rec.LastAccessed.UnixNano()) / 1e9
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO site_memory
			(site_url, session_data, cookies, last_accessed, access_count,
			 success_rate, custom_data, extraction_patterns, performance_metrics,
			 timing_patterns, site_characteristics, anti_detection_rules,
			 optimal_selectors, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			COALESCE((SELECT created_at FROM site_memory WHERE site_url = ?), ?), ?)`,
		rec.SiteURL, string(sessionData), string(cookies), lastAccessed, rec.AccessCount,
		rec.SuccessRate, string(customData), string(extractionPatterns), string(performanceMetrics),
		string(timingPatterns), string(siteCharacteristics), string(antiDetectionRules),
		string(optimalSelectors), rec.SiteURL, now, now,
	)
	if err != nil {
		return fmt.Errorf("save site memory for %s: %w", rec.SiteURL, err)
	}
	return nil
}

// Get retrieves a site's record, or (nil, nil) if it has never been seen.
func (s *Store) Get(siteURL string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT session_data, cookies, last_accessed, access_count,
		       success_rate, custom_data, extraction_patterns,
		       performance_metrics, timing_patterns, site_characteristics,
		       anti_detection_rules, optimal_selectors, created_at, updated_at
		FROM site_memory WHERE site_url = ?`, siteURL)

	var (
		sessionData, cookies, customData                                     string
		extractionPatterns, performanceMetrics, timingPatterns               string
		siteCharacteristics, antiDetectionRules, optimalSelectors            string
		lastAccessed, createdAt, updatedAt                                   float64
		accessCount                                                          int64
		successRate                                                         float64
	)

	err := row.Scan(&sessionData, &cookies, &lastAccessed, &accessCount, &successRate,
		&customData, &extractionPatterns, &performanceMetrics, &timingPatterns,
		&siteCharacteristics, &antiDetectionRules, &optimalSelectors, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get site memory for %s: %w", siteURL, err)
	}

	rec := &Record{
		SiteURL:      siteURL,
		LastAccessed: unixToTime(lastAccessed),
		AccessCount:  accessCount,
		SuccessRate:  successRate,
		CreatedAt:    unixToTime(createdAt),
		UpdatedAt:    unixToTime(updatedAt),
	}

	for _, f := range []struct {
		raw string
		dst interface{}
	}{
		{sessionData, &rec.SessionData},
		{customData, &rec.CustomData},
		{extractionPatterns, &rec.ExtractionPatterns},
		{performanceMetrics, &rec.PerformanceMetrics},
		{timingPatterns, &rec.TimingPatterns},
		{siteCharacteristics, &rec.SiteCharacteristics},
		{antiDetectionRules, &rec.AntiDetectionRules},
	} {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("unmarshal site memory field for %s: %w", siteURL, err)
		}
	}

	if cookies != "" {
		if err := json.Unmarshal([]byte(cookies), &rec.Cookies); err != nil {
			return nil, fmt.Errorf("unmarshal cookies for %s: %w", siteURL, err)
		}
	}
	if optimalSelectors != "" {
		if err := json.Unmarshal([]byte(optimalSelectors), &rec.OptimalSelectors); err != nil {
			return nil, fmt.Errorf("unmarshal optimal_selectors for %s: %w", siteURL, err)
		}
	}

	return rec, nil
}

func orEmptyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func orEmptyCookies(c []map[string]interface{}) []map[string]interface{} {
	if c == nil {
		return []map[string]interface{}{}
	}
	return c
}

func orEmptySelectors(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func unixToTime(seconds float64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(seconds*1e9))
}
