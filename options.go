package westcache

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultRotateInterval 是两次控制表轮询之间的默认间隔。
	DefaultRotateInterval = time.Minute
	// DefaultSnapshotTimeout 是首次轮询等待多久后尝试快照。
	DefaultSnapshotTimeout = 3 * time.Second
	// DefaultStopPollInterval 是 Stop 等待运行结束时的检查间隔。
	DefaultStopPollInterval = 500 * time.Millisecond
	// DefaultExecutorSize 是共享执行器的默认并发数。
	DefaultExecutorSize = 8
)

type options struct {
	rotateInterval   time.Duration
	snapshotTimeout  time.Duration
	stopPollInterval time.Duration
	executor         *Executor
	snapshot         SnapshotStore
	direct           DirectValueSource
	logger           *zap.Logger
	metrics          *Metrics
}

// Option 配置 TableFlusher。
type Option func(*options)

func defaultOptions() options {
	return options{
		rotateInterval:   DefaultRotateInterval,
		snapshotTimeout:  DefaultSnapshotTimeout,
		stopPollInterval: DefaultStopPollInterval,
		logger:           zap.NewNop(),
	}
}

// WithRotateInterval 设置轮询间隔。
func WithRotateInterval(d time.Duration) Option {
	return func(o *options) { o.rotateInterval = d }
}

// WithSnapshotTimeout 设置首次轮询切换到快照前的等待时间。
func WithSnapshotTimeout(d time.Duration) Option {
	return func(o *options) { o.snapshotTimeout = d }
}

// WithStopPollInterval 设置 Stop 的检查间隔。
func WithStopPollInterval(d time.Duration) Option {
	return func(o *options) { o.stopPollInterval = d }
}

// WithExecutor 使用共享执行器。未设置时 TableFlusher 自己创建一个，并在 Close 时关闭。
func WithExecutor(e *Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithSnapshotStore 启用启动快照。
func WithSnapshotStore(s SnapshotStore) Option {
	return func(o *options) { o.snapshot = s }
}

// WithDirectValueSource 设置直接值来源。
func WithDirectValueSource(s DirectValueSource) Option {
	return func(o *options) { o.direct = s }
}

// WithLogger 设置日志。
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics 设置指标。
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}
