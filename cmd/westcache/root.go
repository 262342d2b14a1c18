package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/llx1993/westcache"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app 持有一次命令执行期间的配置和连接。
type app struct {
	configDir string
	cfg       *Config
	log       *zap.Logger
	rdb       *redis.Client
	closers   []func()
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "westcache",
		Short: "Operate the westcache control table",
		Long: `westcache manages the control table that drives cache invalidation:
list, add, bump and remove flusher beans, or watch the table as a flusher would.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.configDir, "config-dir", ".", "directory containing the .env file")

	root.AddCommand(newTableCmd(a), newWatchCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := LoadConfig(a.configDir)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	log, err := NewLogger(cfg.Log)
	if err != nil {
		return errors.Wrap(err, "create logger")
	}
	a.cfg = cfg
	a.log = log
	westcache.SetPrefix(cfg.Redis.Prefix)
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *app) redisClient() *redis.Client {
	if a.rdb == nil {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = a.rdb.Close() })
	}
	return a.rdb
}

// openTable 按 flusher.source 打开控制表。
func (a *app) openTable(ctx context.Context) (westcache.TableAdmin, error) {
	switch a.cfg.Flusher.Source {
	case "redis":
		return westcache.NewRedisTable(a.redisClient()), nil
	case "mysql":
		db, err := westcache.OpenMySQL(ctx, a.cfg.Database)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, func() { _ = sqlDB.Close() })
		}
		return westcache.NewSQLTable(db), nil
	default:
		return nil, errors.Newf("unknown flusher source %q", a.cfg.Flusher.Source)
	}
}

// Execute 运行根命令，失败时通过日志输出错误并退出。
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		l, logErr := NewLogger(LogConfig{Level: "debug", Format: "console"})
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
