package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	is2 "github.com/matryer/is"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

type metricsMap map[string]float64

func Test_observability_Run(t *testing.T) {
	is := is2.New(t)
	ch := GetChannel(0)
	obs := Initialize(Params{Channel: ch})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		is.NoErr(obs.Run(ctx))
	}()
	is.True(obs.Port() != 0)
	addr := fmt.Sprintf("localhost:%d", obs.Port())

	metrics, err := getMetrics(addr)
	is.NoErr(err)
	metricNames := []string{"messages_received", "messages_duplicate", "messages_unexpected",
		"spin_cycles", "relayed_messages", "delivery_complete"}
	for _, name := range metricNames {
		v, ok := metrics[name]
		is.True(ok) // metric is exported
		is.Equal(v, float64(0))
	}

	ch <- MessageReceived
	ch <- MessageReceived
	ch <- MessageDuplicate
	ch <- MessageUnexpected
	ch <- SpinCycle
	ch <- MessageRelayed
	ch <- DeliveryComplete
	is.NoErr(eventually(addr, "delivery_complete", 1))
	metrics, err = getMetrics(addr)
	is.NoErr(err)
	is.Equal(metrics["messages_received"], float64(2))
	is.Equal(metrics["messages_duplicate"], float64(1))
	is.Equal(metrics["messages_unexpected"], float64(1))
	is.Equal(metrics["spin_cycles"], float64(1))
	is.Equal(metrics["relayed_messages"], float64(1))

	ch <- DeliveryIncomplete
	is.NoErr(eventually(addr, "delivery_complete", 0))
	cancel()
	wg.Wait()
}

func TestHealthz(t *testing.T) {
	is := is2.New(t)
	obs := Initialize(Params{Channel: GetChannel(1)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- obs.Run(ctx)
	}()
	addr := fmt.Sprintf("localhost:%d", obs.Port())

	status := func() int {
		resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
		is.NoErr(err)
		defer resp.Body.Close()
		return resp.StatusCode
	}
	is.Equal(status(), http.StatusLocked)
	obs.Ready()
	is.Equal(status(), http.StatusOK)

	cancel()
	is.NoErr(<-done)
}

func TestReport(t *testing.T) {
	is := is2.New(t)
	Report(context.Background(), nil, MessageReceived) // no channel, no-op

	ch := GetChannel(1)
	Report(context.Background(), ch, SpinCycle)
	is.Equal(<-ch, SpinCycle)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Report(ctx, GetChannel(0), SpinCycle) // must not block
	is.Equal(StatusMessage(42).String(), "Unknown")
}

func eventually(addr, name string, want float64) error {
	deadline := time.Now().Add(2 * time.Second)
	for {
		metrics, err := getMetrics(addr)
		if err != nil {
			return err
		}
		if metrics[name] == want {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s is %v, want %v", name, metrics[name], want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// getMetrics fetches the metrics from the /metrics endpoint and returns a map of metric name to value.
func getMetrics(addr string) (metricsMap, error) {
	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	promMetrics, err := parseMF(resp.Body)
	if err != nil {
		return nil, err
	}
	metrics := make(metricsMap)
	for k, v := range promMetrics {
		if v.GetType() == dto.MetricType_GAUGE {
			metrics[k] = v.Metric[0].Gauge.GetValue()
		} else {
			metrics[k] = v.Metric[0].Counter.GetValue()
		}
	}
	return metrics, nil
}

func parseMF(reader io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mf, err := parser.TextToMetricFamilies(reader)
	if err != nil {
		return nil, err
	}
	return mf, nil
}
