package westcache

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// DirectValue 返回 key 对应的直接值。
// 行不是 Direct 时 found=false，调用方应回退到正常计算。
// Full 行直接读取 DirectValueSource；Prefix 行通过前缀缓存读取子值。
func (f *TableFlusher) DirectValue(ctx context.Context, key string) ([]byte, bool, error) {
	raw, _, found, err := f.directValue(ctx, key)
	return raw, found, err
}

func (f *TableFlusher) directValue(ctx context.Context, key string) ([]byte, DirectValueKind, bool, error) {
	if err := f.ensureStarted(ctx, key); err != nil {
		return nil, DirectFull, false, err
	}
	bean, ok := f.FindBean(key)
	if !ok || !bean.IsDirect() {
		return nil, DirectFull, false, nil
	}
	if f.opts.direct == nil {
		return nil, DirectFull, false, ErrNoDirectSource
	}

	if bean.KeyMatch == KeyMatchFull {
		dv, err := f.opts.direct.ReadDirectValue(ctx, bean, DirectFull)
		if err != nil {
			return nil, DirectFull, false, errors.Wrapf(err, "read direct value %q", key)
		}
		return dv.Raw, DirectFull, dv.Found, nil
	}

	raw, found, err := f.prefixCache.Lookup(ctx, bean.CacheKey, SubKey(key, bean.CacheKey),
		func(ctx context.Context) (map[string]string, bool, error) {
			dv, err := f.opts.direct.ReadDirectValue(ctx, bean, DirectSub)
			if err != nil {
				return nil, false, err
			}
			f.log.Debug("prefix values loaded",
				zap.String("prefix", bean.CacheKey),
				zap.Int("subKeys", len(dv.Sub)))
			return dv.Sub, dv.Found, nil
		})
	if err != nil {
		return nil, DirectSub, false, errors.Wrapf(err, "read prefix values %q", bean.CacheKey)
	}
	if !found {
		return nil, DirectSub, false, nil
	}
	return []byte(raw), DirectSub, true, nil
}

// decodeValue 把直接值解码为 T。
// 值按 JSON 解码；T 为 string 且值不是 JSON 字符串时，直接使用原始文本。
func decodeValue[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	if err == nil {
		return v, nil
	}
	if s, ok := any(&v).(*string); ok {
		*s = string(raw)
		return v, nil
	}
	return v, errors.Wrapf(err, "decode direct value into %T", v)
}

// Loader 为 readBy=loader 的行加载直接值。
// DirectFull 时返回整值；DirectSub 时返回子值映射 (map[string]string 或 map[string]any)。
// 返回 nil 表示值不存在。
type Loader interface {
	Load(ctx context.Context, bean FlusherBean, kind DirectValueKind) (any, error)
}

// LoaderFunc 把函数适配为 Loader。
type LoaderFunc func(ctx context.Context, bean FlusherBean, kind DirectValueKind) (any, error)

func (fn LoaderFunc) Load(ctx context.Context, bean FlusherBean, kind DirectValueKind) (any, error) {
	return fn(ctx, bean, kind)
}

// encodeLoaded 把 Loader 的结果转换为 DirectValue。
func encodeLoaded(v any, kind DirectValueKind) (DirectValue, error) {
	if v == nil {
		return DirectValue{}, nil
	}
	if kind == DirectSub {
		switch m := v.(type) {
		case map[string]string:
			return DirectValue{Sub: m, Found: true}, nil
		case map[string]any:
			sub := make(map[string]string, len(m))
			for k, item := range m {
				raw, err := encodeRaw(item)
				if err != nil {
					return DirectValue{}, errors.Wrapf(err, "encode sub value %q", k)
				}
				sub[k] = string(raw)
			}
			return DirectValue{Sub: sub, Found: true}, nil
		default:
			return DirectValue{}, errors.Newf("loader returned %T for sub values", v)
		}
	}
	raw, err := encodeRaw(v)
	if err != nil {
		return DirectValue{}, err
	}
	return DirectValue{Raw: raw, Found: true}, nil
}

func encodeRaw(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case json.RawMessage:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return nil, errors.Wrap(err, "encode direct value")
		}
		return raw, nil
	}
}

// SpecDirectSource 根据行的 Specs 中的 readBy 选择直接值来源：
// table (默认) 读取控制表本身，loader 调用注册的 Loader，redis 读取 Redis。
type SpecDirectSource struct {
	Table   DirectValueSource
	Redis   DirectValueSource
	Loaders *Registry[Loader]
}

var _ DirectValueSource = (*SpecDirectSource)(nil)

func (s *SpecDirectSource) ReadDirectValue(ctx context.Context, bean FlusherBean, kind DirectValueKind) (DirectValue, error) {
	specs := ParseSpecs(bean.Specs)
	switch readBy := specs.Get(SpecReadBy); readBy {
	case "", ReadByTable:
		if s.Table == nil {
			return DirectValue{}, ErrNoDirectSource
		}
		return s.Table.ReadDirectValue(ctx, bean, kind)
	case ReadByRedis:
		if s.Redis == nil {
			return DirectValue{}, errors.Wrapf(ErrNoDirectSource, "readBy=%s", readBy)
		}
		return s.Redis.ReadDirectValue(ctx, bean, kind)
	case ReadByLoader:
		return loadDirect(ctx, s.Loaders, specs, bean, kind)
	default:
		return DirectValue{}, errors.Newf("unknown readBy %q for %q", readBy, bean.CacheKey)
	}
}

func loadDirect(ctx context.Context, loaders *Registry[Loader], specs Specs, bean FlusherBean, kind DirectValueKind) (DirectValue, error) {
	if loaders == nil {
		return DirectValue{}, errors.Wrapf(ErrNoDirectSource, "loader for %q", bean.CacheKey)
	}
	name := specs.Get(SpecLoader)
	loader, ok := loaders.Get(name)
	if !ok {
		return DirectValue{}, errors.Newf("loader %q not registered", name)
	}
	v, err := loader.Load(ctx, bean, kind)
	if err != nil {
		return DirectValue{}, errors.Wrapf(err, "loader %q", name)
	}
	return encodeLoaded(v, kind)
}

// tableDirectValue 把控制表中保存的直接值转换为 DirectValue。
// Prefix 行的值是 JSON 对象，字符串成员取其内容，其他成员保留 JSON 文本。
func tableDirectValue(raw []byte, kind DirectValueKind) (DirectValue, error) {
	if len(raw) == 0 {
		return DirectValue{}, nil
	}
	if kind == DirectFull {
		return DirectValue{Raw: raw, Found: true}, nil
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(raw, &members); err != nil {
		return DirectValue{}, errors.Wrap(err, "decode sub values")
	}
	sub := make(map[string]string, len(members))
	for k, v := range members {
		var s string
		if json.Unmarshal(v, &s) == nil {
			sub[k] = s
		} else {
			sub[k] = string(v)
		}
	}
	return DirectValue{Sub: sub, Found: true}, nil
}
