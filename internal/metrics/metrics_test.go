package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordOTPSent_LabelsByDelivery は配送結果ごとにラベルが分かれることを検証する。
func TestRecordOTPSent_LabelsByDelivery(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOTPSent(true)
	c.RecordOTPSent(true)
	c.RecordOTPSent(false)

	if got := testutil.ToFloat64(c.otpSent.WithLabelValues("ok")); got != 2 {
		t.Errorf("otp_sent_total{delivery=ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.otpSent.WithLabelValues("failed")); got != 1 {
		t.Errorf("otp_sent_total{delivery=failed} = %v, want 1", got)
	}
}

// TestRecordOTPVerify_IncrementsCounterWithLabel は検証結果カウンタがラベル付きで増加することを検証する。
func TestRecordOTPVerify_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOTPVerify("success")
	c.RecordOTPVerify("invalid")
	c.RecordOTPVerify("invalid")

	if got := testutil.ToFloat64(c.otpVerify.WithLabelValues("invalid")); got != 2 {
		t.Errorf("otp_verify_total{result=invalid} = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(c.otpVerify); n != 2 {
		t.Errorf("ラベルの組み合わせ数 = %d, want 2", n)
	}
}

// TestRecordSessionAndUser_ByMethod はセッション発行とユーザー作成が方式別に記録されることを検証する。
func TestRecordSessionAndUser_ByMethod(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionIssued(MethodOTP)
	c.RecordSessionIssued(MethodGoogle)
	c.RecordUserCreated(MethodGoogle)

	if got := testutil.ToFloat64(c.sessionsIssued.WithLabelValues(MethodOTP)); got != 1 {
		t.Errorf("sessions_issued_total{method=otp} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.usersCreated.WithLabelValues(MethodGoogle)); got != 1 {
		t.Errorf("users_created_total{method=google} = %v, want 1", got)
	}
}

// TestRecordInkDeducted_AddsAmount は消費量が加算されることを検証する。
func TestRecordInkDeducted_AddsAmount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordInkDeducted(3)
	c.RecordInkDeducted(7)
	c.RecordInkDeductRejected("insufficient_balance")

	if got := testutil.ToFloat64(c.inkDeducted); got != 10 {
		t.Errorf("ink_deducted_total = %v, want 10", got)
	}
	if got := testutil.ToFloat64(c.inkDeductRejected.WithLabelValues("insufficient_balance")); got != 1 {
		t.Errorf("ink_deduct_rejected_total = %v, want 1", got)
	}
}

// TestHandler_ServesMetrics はスクレイプ用ハンドラーがテキスト形式でメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSessionIssued(MethodOTP)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "inkstudio_sessions_issued_total") {
		t.Error("response should contain inkstudio_sessions_issued_total metric")
	}
}
