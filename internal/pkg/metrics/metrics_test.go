package metrics

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// counterValue 从 Registry 中读取指定计数器（按标签匹配）的当前值
func counterValue(m *Metrics, name string, labels map[string]string) float64 {
	families, err := m.Registry().Gather()
	if err != nil {
		return -1
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetrics(t *testing.T) {
	Convey("Metrics", t, func() {
		Convey("nil receiver is a no-op", func() {
			var m *Metrics
			So(func() { m.ObserveTransition("completed") }, ShouldNotPanic)
			So(func() { m.ObserveProviderCall("kie", "submit", nil, time.Second) }, ShouldNotPanic)
			So(m.Registry(), ShouldBeNil)
		})

		Convey("counts transitions and provider outcomes", func() {
			m := New()
			m.ObserveTransition("completed")
			m.ObserveTransition("completed")
			m.ObserveProviderCall("fal", "compose", nil, 10*time.Millisecond)
			m.ObserveProviderCall("fal", "compose", errors.New("boom"), 10*time.Millisecond)

			So(counterValue(m, "ugc_pipeline_transitions_total", map[string]string{"to": "completed"}), ShouldEqual, 2)
			So(counterValue(m, "ugc_provider_requests_total",
				map[string]string{"provider": "fal", "op": "compose", "outcome": "ok"}), ShouldEqual, 1)
			So(counterValue(m, "ugc_provider_requests_total",
				map[string]string{"provider": "fal", "op": "compose", "outcome": "error"}), ShouldEqual, 1)
		})
	})
}
