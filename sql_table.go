package westcache

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const rowStateEnabled = 1

// flusherRow 是 westcache_flusher 表的一行。state=0 的行被忽略。
type flusherRow struct {
	ID           uint   `gorm:"primaryKey"`
	CacheKey     string `gorm:"column:cache_key;size:255;uniqueIndex"`
	KeyMatch     string `gorm:"column:key_match;size:16"`
	ValueVersion int64  `gorm:"column:value_version"`
	ValueType    string `gorm:"column:value_type;size:16"`
	Specs        string `gorm:"column:specs;size:1024"`
	DirectValue  []byte `gorm:"column:direct_value"`
	State        int    `gorm:"column:state"`
}

func (flusherRow) TableName() string {
	return "westcache_flusher"
}

func (r flusherRow) bean() FlusherBean {
	return FlusherBean{
		CacheKey:     r.CacheKey,
		KeyMatch:     KeyMatch(r.KeyMatch),
		ValueVersion: r.ValueVersion,
		ValueType:    ValueType(r.ValueType),
		Specs:        r.Specs,
	}
}

// SQLTable 是保存在关系数据库中的控制表。
type SQLTable struct {
	db *gorm.DB
}

var _ TableAdmin = (*SQLTable)(nil)

func NewSQLTable(db *gorm.DB) *SQLTable {
	return &SQLTable{db: db}
}

// AutoMigrate 创建或更新表结构。
func (t *SQLTable) AutoMigrate(ctx context.Context) error {
	return errors.Wrap(t.db.WithContext(ctx).AutoMigrate(&flusherRow{}), "migrate westcache_flusher")
}

func (t *SQLTable) QueryAllBeans(ctx context.Context) ([]FlusherBean, error) {
	var rows []flusherRow
	err := t.db.WithContext(ctx).
		Where("state = ?", rowStateEnabled).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "query westcache_flusher")
	}
	beans := make([]FlusherBean, 0, len(rows))
	for _, r := range rows {
		beans = append(beans, r.bean())
	}
	return beans, nil
}

func (t *SQLTable) ReadDirectValue(ctx context.Context, bean FlusherBean, kind DirectValueKind) (DirectValue, error) {
	var row flusherRow
	err := t.db.WithContext(ctx).
		Select("direct_value").
		Where("cache_key = ? AND state = ?", bean.CacheKey, rowStateEnabled).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DirectValue{}, nil
	}
	if err != nil {
		return DirectValue{}, errors.Wrapf(err, "read direct value %q", bean.CacheKey)
	}
	return tableDirectValue(row.DirectValue, kind)
}

func (t *SQLTable) AddBean(ctx context.Context, bean FlusherBean, value []byte) error {
	row := flusherRow{
		CacheKey:     bean.CacheKey,
		KeyMatch:     string(bean.KeyMatch),
		ValueVersion: bean.ValueVersion,
		ValueType:    string(bean.ValueType),
		Specs:        bean.Specs,
		DirectValue:  value,
		State:        rowStateEnabled,
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.Wrapf(err, "add %q", bean.CacheKey)
	}
	return nil
}

func (t *SQLTable) UpgradeVersion(ctx context.Context, cacheKey string) error {
	return t.update(ctx, cacheKey, map[string]any{
		"value_version": gorm.Expr("value_version + 1"),
	})
}

func (t *SQLTable) UpdateDirectValue(ctx context.Context, cacheKey string, value []byte) error {
	return t.update(ctx, cacheKey, map[string]any{
		"direct_value":  value,
		"value_version": gorm.Expr("value_version + 1"),
	})
}

func (t *SQLTable) RemoveBean(ctx context.Context, cacheKey string) error {
	res := t.db.WithContext(ctx).Where("cache_key = ?", cacheKey).Delete(&flusherRow{})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "remove %q", cacheKey)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "remove %q", cacheKey)
	}
	return nil
}

func (t *SQLTable) update(ctx context.Context, cacheKey string, values map[string]any) error {
	res := t.db.WithContext(ctx).
		Model(&flusherRow{}).
		Where("cache_key = ?", cacheKey).
		Updates(values)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update %q", cacheKey)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "update %q", cacheKey)
	}
	return nil
}

// DatabaseConfig 是 MySQL 连接配置。
type DatabaseConfig struct {
	Host           string `mapstructure:"host" default:"127.0.0.1"`
	Port           int    `mapstructure:"port" default:"3306"`
	User           string `mapstructure:"user" default:"root"`
	Password       string `mapstructure:"password"`
	Name           string `mapstructure:"name" default:"westcache"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" default:"10"`
}

func (c DatabaseConfig) timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DSN 生成 go-sql-driver 连接串，密码原样保留。
func (c DatabaseConfig) DSN() string {
	dc := gomysql.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	dc.DBName = c.Name
	dc.Params = map[string]string{"charset": "utf8mb4"}
	dc.ParseTime = true
	dc.Loc = time.Local
	dc.Timeout = c.timeout()
	dc.ReadTimeout = c.timeout()
	dc.WriteTimeout = c.timeout()
	return dc.FormatDSN()
}

// OpenMySQL 连接 MySQL 并检查连通性。
func OpenMySQL(ctx context.Context, cfg DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout())
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}
	return db, nil
}
