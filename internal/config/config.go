package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arkade-os/bvsnap/internal/core/application"
	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/core/ports"
	"github.com/arkade-os/bvsnap/internal/infrastructure/db"
	"github.com/arkade-os/bvsnap/internal/infrastructure/export"
	recordcache "github.com/arkade-os/bvsnap/internal/infrastructure/record-cache"
	inmemorycache "github.com/arkade-os/bvsnap/internal/infrastructure/record-cache/inmemory"
	rediscache "github.com/arkade-os/bvsnap/internal/infrastructure/record-cache/redis"
	checkpointscheduler "github.com/arkade-os/bvsnap/internal/infrastructure/scheduler/checkpoint"
	timescheduler "github.com/arkade-os/bvsnap/internal/infrastructure/scheduler/gocron"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	supportedDbs = supportedType{
		"inmemory": {},
		"badger":   {},
		"sqlite":   {},
		"postgres": {},
	}
	supportedSchedulers = supportedType{
		"gocron":     {},
		"checkpoint": {},
	}
	supportedCaches = supportedType{
		"none":     {},
		"inmemory": {},
		"redis":    {},
	}
)

type Config struct {
	Datadir  string
	LogLevel int

	DbType         string
	DbDir          string
	DbUrl          string
	DbAutoCreate   bool
	ImportBatch    int
	StoreRetries   int
	StoreRetryWait time.Duration

	CacheType string
	CacheSize int
	CacheTTL  time.Duration
	RedisUrl  string

	SchedulerType    string
	SnapshotInterval time.Duration

	Concurrency      int
	BatchSize        int
	MaxNodes         int
	MaxStaleness     uint64
	CorruptionPolicy string
	OrderFilter      string
	PoolsFile        string
	Pools            []string

	OtelCollectorEndpoint string
	OtelPushInterval      int64

	repo      ports.RepoManager
	store     ports.VersionedObjectStore
	cache     ports.RecordCache
	scheduler ports.SchedulerService
	books     application.BookService
	pools     map[string]application.Pool
}

func (c *Config) String() string {
	clone := *c
	if clone.DbUrl != "" {
		clone.DbUrl = maskUrl(clone.DbUrl)
	}
	if clone.RedisUrl != "" {
		clone.RedisUrl = maskUrl(clone.RedisUrl)
	}
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	defaultDatadir          = appDataDir()
	defaultDbType           = "badger"
	defaultSchedulerType    = "checkpoint"
	defaultCacheType        = "inmemory"
	defaultCacheSize        = 100_000
	defaultCacheTTL         = 10 * time.Minute
	defaultLogLevel         = 4
	defaultImportBatch      = 500
	defaultStoreRetries     = 3
	defaultStoreRetryWait   = 200 * time.Millisecond
	defaultSnapshotInterval = 10 * time.Second
	defaultConcurrency      = 8
	defaultBatchSize        = 50
	defaultCorruptionPolicy = "reject"
	defaultOtelPushInterval = 10 // seconds
)

// env returns a list of strings prefixed with `BVSNAP_`.
// This is used as a syntax sugar for defining env vars.
func env(values ...string) []string {
	envs := make([]string, len(values))

	for i, value := range values {
		envs[i] = fmt.Sprintf("BVSNAP_%s", value)
	}

	return envs
}

var (
	Datadir = &cli.StringFlag{
		Usage: "Directory to store data",
		Name:  "datadir", EnvVars: env("DATADIR"),
		Value: defaultDatadir,
	}

	LogLevel = &cli.IntFlag{
		Usage: "Logging level (0-6, where 6 is trace)",
		Name:  "log-level", EnvVars: env("LOG_LEVEL"),
		Value: defaultLogLevel,
	}

	DbType = &cli.StringFlag{
		Usage: "Object store type (inmemory, badger, sqlite, postgres)",
		Name:  "db-type", EnvVars: env("DB_TYPE"),
		Value: defaultDbType,
	}

	DbUrl = &cli.StringFlag{
		Usage: "Postgres connection url if BVSNAP_DB_TYPE is set to postgres",
		Name:  "pg-db-url", EnvVars: env("PG_DB_URL"),
	}

	DbAutoCreate = &cli.BoolFlag{
		Usage: "Create the postgres database if it doesn't exist",
		Name:  "pg-db-autocreate", EnvVars: env("PG_DB_AUTOCREATE"),
	}

	ImportBatch = &cli.IntFlag{
		Usage: "Number of records written to the store per import batch",
		Name:  "import-batch-size", EnvVars: env("IMPORT_BATCH_SIZE"),
		Value: defaultImportBatch,
	}

	StoreRetries = &cli.IntFlag{
		Usage: "Number of retries for failed store reads, 0 disables retries",
		Name:  "store-retries", EnvVars: env("STORE_RETRIES"),
		Value: defaultStoreRetries,
	}

	StoreRetryWait = &cli.DurationFlag{
		Usage: "Base delay between store read retries, doubled at every attempt",
		Name:  "store-retry-wait", EnvVars: env("STORE_RETRY_WAIT"),
		Value: defaultStoreRetryWait,
	}

	CacheType = &cli.StringFlag{
		Usage: "Record cache type (none, inmemory, redis)",
		Name:  "cache-type", EnvVars: env("CACHE_TYPE"),
		Value: defaultCacheType,
	}

	CacheSize = &cli.IntFlag{
		Usage: "Max number of records held by the inmemory cache",
		Name:  "cache-size", EnvVars: env("CACHE_SIZE"),
		Value: defaultCacheSize,
	}

	CacheTTL = &cli.DurationFlag{
		Usage: "Expiration of cached records",
		Name:  "cache-ttl", EnvVars: env("CACHE_TTL"),
		Value: defaultCacheTTL,
	}

	RedisUrl = &cli.StringFlag{
		Usage: "Redis db connection url if BVSNAP_CACHE_TYPE is set to redis",
		Name:  "redis-url", EnvVars: env("REDIS_URL"),
	}

	SchedulerType = &cli.StringFlag{
		Usage: "Snapshot scheduler type (gocron, checkpoint)",
		Name:  "scheduler-type", EnvVars: env("SCHEDULER_TYPE"),
		Value: defaultSchedulerType,
	}

	SnapshotInterval = &cli.DurationFlag{
		Usage: "Interval between watcher ticks",
		Name:  "snapshot-interval", EnvVars: env("SNAPSHOT_INTERVAL"),
		Value: defaultSnapshotInterval,
	}

	Concurrency = &cli.IntFlag{
		Usage: "Max number of in-flight store lookups per tree level",
		Name:  "concurrency", EnvVars: env("CONCURRENCY"),
		Value: defaultConcurrency,
	}

	BatchSize = &cli.IntFlag{
		Usage: "Number of nodes fetched per batch lookup, 0 disables batching",
		Name:  "batch-size", EnvVars: env("BATCH_SIZE"),
		Value: defaultBatchSize,
	}

	MaxNodes = &cli.IntFlag{
		Usage: "Max number of nodes fetched per reconstruction, 0 means unbounded",
		Name:  "max-nodes", EnvVars: env("MAX_NODES"),
	}

	MaxStaleness = &cli.Uint64Flag{
		Usage: "Max tolerated distance in checkpoints between a node and the target, 0 disables the check",
		Name:  "max-staleness", EnvVars: env("MAX_STALENESS"),
	}

	CorruptionPolicy = &cli.StringFlag{
		Usage: "What to do with structurally corrupted trees (reject, annotate)",
		Name:  "corruption-policy", EnvVars: env("CORRUPTION_POLICY"),
		Value: defaultCorruptionPolicy,
	}

	OrderFilter = &cli.StringFlag{
		Usage: "Expression selecting the orders kept in books, ie. 'Remaining > 0 && Price < 4000000'",
		Name:  "order-filter", EnvVars: env("ORDER_FILTER"),
	}

	PoolsFile = &cli.StringFlag{
		Usage: "Yaml file with extra pool definitions",
		Name:  "pools-file", EnvVars: env("POOLS_FILE"),
	}

	Pools = &cli.StringSliceFlag{
		Usage: "Names of the pools to watch, all known pools if unset",
		Name:  "pool", EnvVars: env("POOLS"),
	}

	OtelCollectorEndpoint = &cli.StringFlag{
		Usage: "OpenTelemetry collector endpoint",
		Name:  "otel-collector-endpoint", EnvVars: env("OTEL_COLLECTOR_ENDPOINT"),
	}

	OtelPushInterval = &cli.Int64Flag{
		Usage: "OpenTelemetry push interval in seconds",
		Name:  "otel-push-interval", EnvVars: env("OTEL_PUSH_INTERVAL"),
		Value: int64(defaultOtelPushInterval),
	}
)

var Flags = []cli.Flag{
	Datadir,
	LogLevel,
	DbType,
	DbUrl,
	DbAutoCreate,
	ImportBatch,
	StoreRetries,
	StoreRetryWait,
	CacheType,
	CacheSize,
	CacheTTL,
	RedisUrl,
	SchedulerType,
	SnapshotInterval,
	Concurrency,
	BatchSize,
	MaxNodes,
	MaxStaleness,
	CorruptionPolicy,
	OrderFilter,
	PoolsFile,
	Pools,
	OtelCollectorEndpoint,
	OtelPushInterval,
}

func LoadConfig(c *cli.Context) (*Config, error) {
	if err := initDatadir(c); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %s", err)
	}

	dbPath := filepath.Join(c.String(Datadir.Name), "db")

	var dbUrl string
	if c.String(DbType.Name) == "postgres" {
		dbUrl = c.String(DbUrl.Name)
		if dbUrl == "" {
			return nil, fmt.Errorf("db type set to 'postgres' but db url is missing")
		}
	}

	var redisUrl string
	if c.String(CacheType.Name) == "redis" {
		redisUrl = c.String(RedisUrl.Name)
		if redisUrl == "" {
			return nil, fmt.Errorf("cache type set to 'redis' but redis url is missing")
		}
	}

	return &Config{
		Datadir:               c.String(Datadir.Name),
		LogLevel:              c.Int(LogLevel.Name),
		DbType:                c.String(DbType.Name),
		DbDir:                 dbPath,
		DbUrl:                 dbUrl,
		DbAutoCreate:          c.Bool(DbAutoCreate.Name),
		ImportBatch:           c.Int(ImportBatch.Name),
		StoreRetries:          c.Int(StoreRetries.Name),
		StoreRetryWait:        c.Duration(StoreRetryWait.Name),
		CacheType:             c.String(CacheType.Name),
		CacheSize:             c.Int(CacheSize.Name),
		CacheTTL:              c.Duration(CacheTTL.Name),
		RedisUrl:              redisUrl,
		SchedulerType:         c.String(SchedulerType.Name),
		SnapshotInterval:      c.Duration(SnapshotInterval.Name),
		Concurrency:           c.Int(Concurrency.Name),
		BatchSize:             c.Int(BatchSize.Name),
		MaxNodes:              c.Int(MaxNodes.Name),
		MaxStaleness:          c.Uint64(MaxStaleness.Name),
		CorruptionPolicy:      c.String(CorruptionPolicy.Name),
		OrderFilter:           c.String(OrderFilter.Name),
		PoolsFile:             c.String(PoolsFile.Name),
		Pools:                 c.StringSlice(Pools.Name),
		OtelCollectorEndpoint: c.String(OtelCollectorEndpoint.Name),
		OtelPushInterval:      c.Int64(OtelPushInterval.Name),
	}, nil
}

func initDatadir(c *cli.Context) error {
	datadir := c.String(Datadir.Name)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0o755)
	}
	return nil
}

func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf(
			"scheduler type not supported, please select one of: %s",
			supportedSchedulers,
		)
	}
	if !supportedCaches.supports(c.CacheType) {
		return fmt.Errorf("cache type not supported, please select one of: %s", supportedCaches)
	}
	if c.DbType == "postgres" && c.DbUrl == "" {
		return fmt.Errorf("missing postgres db url")
	}
	if c.CacheType == "redis" && c.RedisUrl == "" {
		return fmt.Errorf("missing redis url")
	}
	if c.CacheType == "inmemory" && c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be greater than 0")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be greater than 0")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch size must not be negative")
	}
	if c.MaxNodes < 0 {
		return fmt.Errorf("max nodes must not be negative")
	}
	if c.StoreRetries < 0 {
		return fmt.Errorf("store retries must not be negative")
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("snapshot interval must be greater than 0")
	}
	if c.OtelCollectorEndpoint != "" && c.OtelPushInterval <= 0 {
		return fmt.Errorf("otel push interval must be greater than 0")
	}
	if _, err := application.ParseCorruptionPolicy(c.CorruptionPolicy); err != nil {
		return err
	}
	if _, err := application.CompileOrderFilter(c.OrderFilter); err != nil {
		return err
	}

	pools, err := loadPools(c.PoolsFile)
	if err != nil {
		return err
	}
	if _, err := selectPools(pools, c.Pools); err != nil {
		return err
	}
	c.pools = pools

	return nil
}

func (c *Config) RepoManager() (ports.RepoManager, error) {
	if c.repo == nil {
		if err := c.repoManager(); err != nil {
			return nil, err
		}
	}
	return c.repo, nil
}

// ObjectStore returns the read path of the repository, with retries and
// caching in front of it.
func (c *Config) ObjectStore() (ports.VersionedObjectStore, error) {
	if c.store == nil {
		if err := c.objectStore(); err != nil {
			return nil, err
		}
	}
	return c.store, nil
}

func (c *Config) Importer() (*export.Importer, error) {
	repo, err := c.RepoManager()
	if err != nil {
		return nil, err
	}
	return export.NewImporter(repo.Objects(), export.WithBatchSize(c.ImportBatch))
}

func (c *Config) BookService() (application.BookService, error) {
	if c.books == nil {
		if err := c.bookService(); err != nil {
			return nil, err
		}
	}
	return c.books, nil
}

func (c *Config) SchedulerService() (ports.SchedulerService, error) {
	if c.scheduler == nil {
		if err := c.schedulerService(); err != nil {
			return nil, err
		}
	}
	return c.scheduler, nil
}

func (c *Config) ReconstructionOptions() []application.Option {
	// Validated already.
	// nolint:errcheck
	policy, _ := application.ParseCorruptionPolicy(c.CorruptionPolicy)
	return []application.Option{
		application.WithConcurrency(c.Concurrency),
		application.WithBatchSize(c.BatchSize),
		application.WithMaxNodes(c.MaxNodes),
		application.WithMaxStaleness(domain.Checkpoint(c.MaxStaleness)),
		application.WithCorruptionPolicy(policy),
	}
}

// WatchedPools returns the pools selected by the config, all the known ones
// if none is explicitly selected.
func (c *Config) WatchedPools() ([]application.Pool, error) {
	pools, err := c.knownPools()
	if err != nil {
		return nil, err
	}
	return selectPools(pools, c.Pools)
}

// Pool returns the known pool with the given name.
func (c *Config) Pool(name string) (application.Pool, error) {
	pools, err := c.knownPools()
	if err != nil {
		return application.Pool{}, err
	}
	selected, err := selectPools(pools, []string{name})
	if err != nil {
		return application.Pool{}, err
	}
	return selected[0], nil
}

func (c *Config) Watcher(onSnapshot application.SnapshotHandler) (application.Watcher, error) {
	books, err := c.BookService()
	if err != nil {
		return nil, err
	}
	scheduler, err := c.SchedulerService()
	if err != nil {
		return nil, err
	}
	repo, err := c.RepoManager()
	if err != nil {
		return nil, err
	}
	pools, err := c.WatchedPools()
	if err != nil {
		return nil, err
	}
	return application.NewWatcher(books, repo.Objects(), scheduler, pools, onSnapshot)
}

func (c *Config) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
	if c.repo != nil {
		c.repo.Close()
	}
}

func (c *Config) knownPools() (map[string]application.Pool, error) {
	if c.pools == nil {
		pools, err := loadPools(c.PoolsFile)
		if err != nil {
			return nil, err
		}
		c.pools = pools
	}
	return c.pools, nil
}

func (c *Config) repoManager() error {
	var dataStoreConfig []interface{}
	logger := log.New()
	logger.SetLevel(log.Level(c.LogLevel))

	switch c.DbType {
	case "inmemory":
		dataStoreConfig = nil
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	case "postgres":
		dataStoreConfig = []interface{}{c.DbUrl, c.DbAutoCreate}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType:   c.DbType,
		DataStoreConfig: dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) recordCache() error {
	switch c.CacheType {
	case "none":
		return nil
	case "inmemory":
		c.cache = inmemorycache.NewRecordCache(c.CacheSize, c.CacheTTL)
	case "redis":
		redisOpts, err := redis.ParseURL(c.RedisUrl)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		c.cache = rediscache.NewRecordCache(rdb, c.CacheTTL)
	default:
		return fmt.Errorf("unknown cache type")
	}
	return nil
}

func (c *Config) objectStore() error {
	repo, err := c.RepoManager()
	if err != nil {
		return err
	}
	if c.cache == nil {
		if err := c.recordCache(); err != nil {
			return err
		}
	}

	var store ports.VersionedObjectStore = db.NewRetryingStore(
		repo.Objects(), c.StoreRetries, c.StoreRetryWait,
	)
	if c.cache != nil {
		store = recordcache.NewCachedStore(store, repo.Objects(), c.cache)
	}

	c.store = store
	return nil
}

func (c *Config) schedulerService() error {
	var svc ports.SchedulerService
	var err error
	switch c.SchedulerType {
	case "gocron":
		svc = timescheduler.NewScheduler(timescheduler.WithInterval(c.SnapshotInterval))
	case "checkpoint":
		repo, rerr := c.RepoManager()
		if rerr != nil {
			return rerr
		}
		svc, err = checkpointscheduler.NewScheduler(
			repo.Objects(), checkpointscheduler.WithTickerInterval(c.SnapshotInterval),
		)
	default:
		err = fmt.Errorf("unknown scheduler type")
	}
	if err != nil {
		return err
	}

	c.scheduler = svc
	return nil
}

func (c *Config) bookService() error {
	store, err := c.ObjectStore()
	if err != nil {
		return err
	}
	filter, err := application.CompileOrderFilter(c.OrderFilter)
	if err != nil {
		return err
	}

	svc, err := application.NewBookService(store, filter, c.ReconstructionOptions()...)
	if err != nil {
		return err
	}

	c.books = svc
	return nil
}

func appDataDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".bvsnap")
	}
	return ".bvsnap"
}

func maskUrl(rawUrl string) string {
	u, err := url.Parse(rawUrl)
	if err != nil || u.User == nil {
		return rawUrl
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
