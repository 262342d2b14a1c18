package westcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

var (
	ErrNotFound       = errors.New("flusher bean not found")
	ErrNotStarted     = errors.New("table flusher not started")
	ErrNoDirectSource = errors.New("no direct value source configured")
	ErrNoBeanSource   = errors.New("bean source is required")
)

// BeanSource 提供控制表快照。
type BeanSource interface {
	QueryAllBeans(ctx context.Context) ([]FlusherBean, error)
}

// DirectValueSource 为 Direct 行提供值：Full 读取整值，Sub 读取前缀下的子值映射。
type DirectValueSource interface {
	ReadDirectValue(ctx context.Context, bean FlusherBean, kind DirectValueKind) (DirectValue, error)
}

// TableFlusher 是基于控制表的缓存失效引擎。
//
// 它在第一次查找时启动，周期性轮询 BeanSource，把版本变化展开为需要逐出的存活 Key，
// 并维护前缀直接值的二级缓存。查找只读取当前表，不加锁，可能落后一次轮询。
type TableFlusher struct {
	source   BeanSource
	registry KeyRegistry
	opts     options
	log      *zap.Logger

	table        atomic.Pointer[Table] // nil 表示尚未初始化
	lastExecuted atomic.Int64          // 最近一次成功轮询的 UnixNano，0 表示没有
	prefixCache  *PrefixValueCache

	// startMu 串行化启动/停止；pollMu 串行化轮询（查询和表的替换）。
	startMu    sync.Mutex
	pollMu     sync.Mutex
	state      atomic.Int32
	task       *ScheduledTask
	inflight   atomic.Int32
	startupKey string

	ownsExecutor bool
}

// NewTableFlusher 创建引擎。registry 是底层值缓存，逐出通过它完成。
func NewTableFlusher(source BeanSource, registry KeyRegistry, opts ...Option) (*TableFlusher, error) {
	if source == nil {
		return nil, ErrNoBeanSource
	}
	if registry == nil {
		return nil, errors.New("key registry is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.rotateInterval <= 0 {
		return nil, errors.Newf("invalid rotate interval %s", o.rotateInterval)
	}

	f := &TableFlusher{
		source:      source,
		registry:    registry,
		opts:        o,
		log:         o.logger.Named("westcache"),
		prefixCache: NewPrefixValueCache(),
	}
	if f.opts.executor == nil {
		f.opts.executor = NewExecutor(DefaultExecutorSize, f.log)
		f.ownsExecutor = true
	}
	return f, nil
}

// IsKeyEnabled 确保引擎已启动，并报告 cacheKey 是否有对应的控制表行。
// 首次调用会运行第一次轮询，轮询失败的错误返回给调用方，下次调用会重试启动。
func (f *TableFlusher) IsKeyEnabled(ctx context.Context, cacheKey string) (bool, error) {
	if err := f.ensureStarted(ctx, cacheKey); err != nil {
		return false, err
	}
	_, ok := f.FindBean(cacheKey)
	return ok, nil
}

// FindBean 在当前表中解析 cacheKey，Full 行优先于 Prefix 行。
func (f *TableFlusher) FindBean(cacheKey string) (FlusherBean, bool) {
	return f.table.Load().Find(cacheKey)
}

// Table 返回当前持有的表，未初始化时为 nil。
func (f *TableFlusher) Table() *Table {
	return f.table.Load()
}

// LastExecuted 返回最近一次成功轮询的时间，零值表示还没有。
func (f *TableFlusher) LastExecuted() time.Time {
	n := f.lastExecuted.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Refresh 立即运行一次轮询。引擎未运行时返回 ErrNotStarted。
func (f *TableFlusher) Refresh(ctx context.Context) error {
	f.inflight.Add(1)
	defer f.inflight.Add(-1)
	if f.State() != StateRunning {
		return ErrNotStarted
	}
	return f.poll(ctx, f.startupKey)
}

// Close 停止引擎，并关闭自己创建的执行器。
func (f *TableFlusher) Close() {
	f.Stop()
	if f.ownsExecutor {
		f.opts.executor.Close()
	}
}
