package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/doppler-simulator/internal/sim"
	"github.com/signalsfoundry/doppler-simulator/model"
)

var _ sim.MetricsRecorder = (*SimCollector)(nil)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/doppler.v1.Simulation/Snapshot"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		time.Sleep(time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("Snapshot", "OK")); got != 1 {
		t.Fatalf("doppler_rpc_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "doppler_rpc_request_duration_seconds", map[string]string{
		"method": "Snapshot",
	}); count != 1 {
		t.Fatalf("doppler_rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	collector, err := NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/doppler.v1.Simulation/Input"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("Input", "InvalidArgument")); got != 1 {
		t.Fatalf("doppler_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestNilCollectorInterceptorPassesThrough(t *testing.T) {
	var c *SimCollector
	resp, err := c.UnaryServerInterceptor()(context.Background(), nil, nil, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Fatalf("interceptor = %v, %v; want ok, nil", resp, err)
	}
}

func TestRegisterRejectsTypeCollision(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "doppler_ticks_total",
		Help: "Number of engine ticks advanced.",
	}))
	if _, err := NewSimCollector(reg); err == nil {
		t.Fatalf("NewSimCollector accepted a histogram registered under a counter name")
	}
}

func TestCollectorsReuseRegistrations(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}

	first.IncShockwave()
	second.IncShockwave()
	if got := testutil.ToFloat64(first.Shockwaves); got != 2 {
		t.Fatalf("shared shockwave counter = %v, want 2", got)
	}
}

func TestSimCollectorRecordsEngineEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	c.ObserveTick(2 * time.Millisecond)
	c.ObserveTick(3 * time.Millisecond)
	c.IncWavefront(model.WaveNormal)
	c.IncWavefront(model.WaveReflected)
	c.IncEchoScheduled(model.WaveRipple)
	c.IncEchoFired(model.WaveRipple)
	c.AddEchoesCancelled(4)
	c.AddEchoesCancelled(0)
	c.IncClassChange(model.VehicleCar, model.VehicleAmbulance)
	c.IncCollaboratorFailure("renderer")
	c.SetLiveWavefronts(7)
	c.SetKinematics(686, 2)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"ticks", testutil.ToFloat64(c.Ticks), 2},
		{"normal wavefronts", testutil.ToFloat64(c.WavefrontsEmitted.WithLabelValues("normal")), 1},
		{"reflected wavefronts", testutil.ToFloat64(c.WavefrontsEmitted.WithLabelValues("reflected")), 1},
		{"ripples scheduled", testutil.ToFloat64(c.EchoesScheduled.WithLabelValues("ripple")), 1},
		{"ripples fired", testutil.ToFloat64(c.EchoesFired.WithLabelValues("ripple")), 1},
		{"cancelled", testutil.ToFloat64(c.EchoesCancelled), 4},
		{"class changes", testutil.ToFloat64(c.ClassChanges.WithLabelValues("car", "ambulance")), 1},
		{"renderer failures", testutil.ToFloat64(c.CollaboratorFailures.WithLabelValues("renderer")), 1},
		{"live", testutil.ToFloat64(c.WavefrontsLive), 7},
		{"speed", testutil.ToFloat64(c.SourceSpeed), 686},
		{"mach", testutil.ToFloat64(c.SourceMach), 2},
	}
	for _, tc := range checks {
		if tc.got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}

	if count := histogramSampleCount(t, reg, "doppler_tick_duration_seconds", nil); count != 2 {
		t.Fatalf("doppler_tick_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestSimCollectorNilIsSafe(t *testing.T) {
	var c *SimCollector
	c.ObserveTick(time.Millisecond)
	c.IncShockwave()
	c.SetKinematics(1, 1)
	if c.Gatherer() != nil {
		t.Fatalf("nil collector returned a gatherer")
	}
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	c.Requests.WithLabelValues("Input", "OK").Inc()
	c.SetKinematics(343, 1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		`doppler_rpc_requests_total{code="OK",method="Input"} 1`,
		"doppler_source_speed_mps 343",
		"doppler_source_mach 1",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
