package sitememory

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "site_memory.db"), time.Hour)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGetRoundTrips(t *testing.T) {
	s := openTestStore(t)

	rec := Record{
		SiteURL:     "https://example.com",
		AccessCount: 3,
		SuccessRate: 0.8,
		CustomData:  map[string]interface{}{"region": "us"},
	}
	if err := s.Save(rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Get("https://example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected record to round-trip, got nil")
	}
	if got.AccessCount != 3 || got.SuccessRate != 0.8 {
		t.Errorf("expected access_count=3 success_rate=0.8, got %+v", got)
	}
	if got.CustomData["region"] != "us" {
		t.Errorf("expected custom_data to round-trip, got %v", got.CustomData)
	}
}

func TestGetUnknownSiteReturnsNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Get("https://never-seen.example")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown site, got %+v", got)
	}
}

func TestSavePreservesCreatedAtAcrossUpserts(t *testing.T) {
	s := openTestStore(t)
	site := "https://preserve.example"

	if err := s.Save(Record{SiteURL: site, AccessCount: 1}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	first, err := s.Get(site)
	if err != nil || first == nil {
		t.Fatalf("get after first save: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if err := s.Save(Record{SiteURL: site, AccessCount: 2}); err != nil {
		t.Fatalf("second save: %v", err)
	}
	second, err := s.Get(site)
	if err != nil || second == nil {
		t.Fatalf("get after second save: %v", err)
	}

	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Errorf("expected created_at to be preserved across upserts: %v vs %v", first.CreatedAt, second.CreatedAt)
	}
	if second.AccessCount != 2 {
		t.Errorf("expected access_count to update, got %d", second.AccessCount)
	}
}

func TestUpdateAccessStatsUnknownSiteErrors(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpdateAccessStats("https://ghost.example", true, nil); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAccessStatsAppliesEMA(t *testing.T) {
	s := openTestStore(t)
	site := "https://ema.example"
	if err := s.Save(Record{SiteURL: site, SuccessRate: 0.5}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.UpdateAccessStats(site, true, nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := s.Get(site)
	want := 0.9*0.5 + 0.1*1.0
	if got.SuccessRate != want {
		t.Errorf("expected success_rate=%v, got %v", want, got.SuccessRate)
	}
	if got.AccessCount != 1 {
		t.Errorf("expected access_count=1, got %d", got.AccessCount)
	}
}

func TestUpdateAccessStatsTracksRollingPerformance(t *testing.T) {
	s := openTestStore(t)
	site := "https://perf.example"
	if err := s.Save(Record{SiteURL: site}); err != nil {
		t.Fatalf("save: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := s.UpdateAccessStats(site, true, map[string]float64{"load_time": float64(i)}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	got, _ := s.Get(site)
	samples := floatSliceFrom(got.PerformanceMetrics["load_time"])
	if len(samples) != 5 {
		t.Errorf("expected 5 rolling samples, got %d", len(samples))
	}
	if avg, ok := got.PerformanceMetrics["load_time_avg"].(float64); !ok || avg != 2.0 {
		t.Errorf("expected load_time_avg=2.0, got %v", got.PerformanceMetrics["load_time_avg"])
	}
}

func TestUpdateExtractionPatternsCreatesRecordIfMissing(t *testing.T) {
	s := openTestStore(t)
	site := "https://new-site.example"

	if err := s.UpdateExtractionPatterns(site, map[string]interface{}{"title_selector": "h1"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.Get(site)
	if err != nil || got == nil {
		t.Fatalf("expected record to be created, err=%v", err)
	}
	if got.ExtractionPatterns["title_selector"] != "h1" {
		t.Errorf("expected extraction pattern to persist, got %v", got.ExtractionPatterns)
	}
}

func TestUpdateOptimalSelectorsMerges(t *testing.T) {
	s := openTestStore(t)
	site := "https://selectors.example"

	if err := s.UpdateOptimalSelectors(site, map[string]string{"title": "h1"}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := s.UpdateOptimalSelectors(site, map[string]string{"price": ".price"}); err != nil {
		t.Fatalf("second update: %v", err)
	}

	got, _ := s.Get(site)
	if got.OptimalSelectors["title"] != "h1" || got.OptimalSelectors["price"] != ".price" {
		t.Errorf("expected both selectors merged, got %v", got.OptimalSelectors)
	}
}

func TestCleanupExpiredRemovesStaleRecords(t *testing.T) {
	s := openTestStore(t)
	s.ttl = 10 * time.Millisecond

	if err := s.Save(Record{SiteURL: "https://stale.example", LastAccessed: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("save: %v", err)
	}

	deleted, err := s.CleanupExpired()
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted record, got %d", deleted)
	}
}

func TestTopSitesOrdersByAccessCount(t *testing.T) {
	s := openTestStore(t)
	_ = s.Save(Record{SiteURL: "https://low.example", AccessCount: 1})
	_ = s.Save(Record{SiteURL: "https://high.example", AccessCount: 10})

	top, err := s.Top(5, "access_count")
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].SiteURL != "https://high.example" {
		t.Errorf("expected high.example first, got %+v", top)
	}
}

func TestTopSitesFallsBackOnInvalidSortField(t *testing.T) {
	s := openTestStore(t)
	_ = s.Save(Record{SiteURL: "https://a.example", AccessCount: 1})

	if _, err := s.Top(5, "'; DROP TABLE site_memory; --"); err != nil {
		t.Fatalf("expected invalid sort field to fall back safely, got error: %v", err)
	}
}

func TestSearchByPatternFindsMatch(t *testing.T) {
	s := openTestStore(t)
	site := "https://pattern.example"
	if err := s.UpdateExtractionPatterns(site, map[string]interface{}{"layout": "grid"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	matches, err := s.SearchByPattern("layout", "grid")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0] != site {
		t.Errorf("expected to find %s, got %v", site, matches)
	}
}

func TestStatsAggregates(t *testing.T) {
	s := openTestStore(t)
	_ = s.Save(Record{SiteURL: "https://one.example", AccessCount: 2, SuccessRate: 1.0})
	_ = s.Save(Record{SiteURL: "https://two.example", AccessCount: 4, SuccessRate: 0.5})

	summary, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if summary.TotalSites != 2 {
		t.Errorf("expected 2 sites, got %d", summary.TotalSites)
	}
	if summary.TotalAccesses != 6 {
		t.Errorf("expected 6 total accesses, got %d", summary.TotalAccesses)
	}
}
