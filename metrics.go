package westcache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 轮询结果标签
const (
	PollAdopted   = "adopted"
	PollUnchanged = "unchanged"
	PollChanged   = "changed"
	PollError     = "error"
)

// Metrics 记录轮询和逐出的计数。nil 的 *Metrics 可以安全调用。
type Metrics struct {
	polls     *prometheus.CounterVec
	flushed   *prometheus.CounterVec
	fallbacks prometheus.Counter
}

// NewMetrics 创建指标，reg 不为 nil 时注册到 reg。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "westcache",
			Name:      "polls_total",
			Help:      "Control table polls by result.",
		}, []string{"result"}),
		flushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "westcache",
			Name:      "flushed_keys_total",
			Help:      "Keys flushed by the table flusher, by kind (full or prefix).",
		}, []string{"kind"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "westcache",
			Name:      "snapshot_fallbacks_total",
			Help:      "First polls that timed out and were released by a persisted snapshot.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.polls, m.flushed, m.fallbacks)
	}
	return m
}

func (m *Metrics) poll(result string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
}

func (m *Metrics) flush(plan FlushPlan) {
	if m == nil {
		return
	}
	m.flushed.WithLabelValues("full").Add(float64(len(plan.FullKeys)))
	m.flushed.WithLabelValues("prefix").Add(float64(len(plan.PrefixKeys)))
}

func (m *Metrics) snapshotFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}
