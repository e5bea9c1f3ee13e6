package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avtodeleer/gooddrive/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから指定名・ラベルのメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok {
			if v != lp.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if c := NewCollector(prometheus.NewRegistry()); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestNewCollector_DoubleRegistration_Panics は同一レジストリへの二重登録がpanicすることを検証する。
func TestNewCollector_DoubleRegistration_Panics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewCollector(reg)
}

func TestObserveDecision_CountsByScopeAndResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveDecision("api", true)
	c.ObserveDecision("api", true)
	c.ObserveDecision("api", false)

	allowed := findMetric(t, reg, "gooddrive_ratelimit_decisions_total", map[string]string{"scope": "api", "result": "allowed"})
	if v := allowed.GetCounter().GetValue(); v != 2 {
		t.Errorf("allowed = %v, want 2", v)
	}
	rejected := findMetric(t, reg, "gooddrive_ratelimit_decisions_total", map[string]string{"scope": "api", "result": "rejected"})
	if v := rejected.GetCounter().GetValue(); v != 1 {
		t.Errorf("rejected = %v, want 1", v)
	}
}

func TestObserveSweep_AddsRemoved(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveSweep(3)
	c.ObserveSweep(0)

	m := findMetric(t, reg, "gooddrive_ratelimit_swept_total", nil)
	if v := m.GetCounter().GetValue(); v != 3 {
		t.Errorf("swept = %v, want 3", v)
	}
}

func TestObserveIdentityAndError(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveIdentity("authenticated")
	c.ObserveError(model.KindRateLimited, model.ErrCodeRateLimitExceeded)

	if v := findMetric(t, reg, "gooddrive_identity_resolutions_total", map[string]string{"outcome": "authenticated"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("identity = %v, want 1", v)
	}
	labels := map[string]string{"kind": "rate_limited", "code": model.ErrCodeRateLimitExceeded}
	if v := findMetric(t, reg, "gooddrive_errors_total", labels).GetCounter().GetValue(); v != 1 {
		t.Errorf("errors = %v, want 1", v)
	}
}

func TestObserveHTTPRequest_RecordsStatusAndLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveHTTPRequest(http.MethodGet, 200, 120*time.Millisecond)
	c.ObserveHTTPRequest(http.MethodGet, 429, 5*time.Millisecond)

	ok := findMetric(t, reg, "gooddrive_http_requests_total", map[string]string{"method": "GET", "status_code": "200"})
	if v := ok.GetCounter().GetValue(); v != 1 {
		t.Errorf("200 count = %v, want 1", v)
	}
	hist := findMetric(t, reg, "gooddrive_http_request_duration_seconds", nil)
	if n := hist.GetHistogram().GetSampleCount(); n != 2 {
		t.Errorf("sample count = %d, want 2", n)
	}
}

func TestRecordImportRows(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordImportRows("created", 10)
	c.RecordImportRows("skipped", 2)

	if v := findMetric(t, reg, "gooddrive_import_rows_total", map[string]string{"result": "created"}).GetCounter().GetValue(); v != 10 {
		t.Errorf("created = %v, want 10", v)
	}
}

func TestRegisterTrackedKeys_ReportsCurrentValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	n := 4
	c.RegisterTrackedKeys(func() int { return n })
	n = 7

	if v := findMetric(t, reg, "gooddrive_ratelimit_tracked_keys", nil).GetGauge().GetValue(); v != 7 {
		t.Errorf("tracked keys = %v, want 7", v)
	}
}

// TestHandler_ServesMetrics はスクレイプ用ハンドラーがメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ObserveDecision("auth", false)

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "gooddrive_ratelimit_decisions_total") {
		t.Error("expected gooddrive_ratelimit_decisions_total in output")
	}
}
