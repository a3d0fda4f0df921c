// Package cli implements the s3pipe command line drivers.
// The file layout follows the standard cobra template, see
// https://github.com/spf13/cobra
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/s3pipe/s3pipe/internal/config"
	"github.com/s3pipe/s3pipe/internal/metrics"
	"github.com/s3pipe/s3pipe/pkg/s3"
	"github.com/s3pipe/s3pipe/pkg/utils"
)

var cfgFile string

// runtime carries everything a subcommand needs after the root
// command has finished initialization.
type runtime struct {
	cfg       *config.Configuration
	logger    *slog.Logger
	collector *metrics.Collector
	logCloser func() error
}

var rt *runtime

var rootFlags struct {
	bucket      string
	host        string
	proxy       string
	walrus      bool
	https       bool
	poolSize    int
	concurrency int
	logLevel    string
	metricsPort int
	trace       bool
}

var rootCmd = &cobra.Command{
	Use:   "s3pipe",
	Short: "Pipelined S3 transfer drivers",
	Long: `s3pipe drives S3-compatible object stores with pipelined
requests. The put, get, multiget and check subcommands move data and
verify it; all of them share the connection, retry and metrics
configuration set here.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		rt, err = newRuntime(cmd)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rt == nil {
			return
		}
		if rt.collector != nil {
			_ = rt.collector.Stop(context.Background())
		}
		if rt.logCloser != nil {
			_ = rt.logCloser()
		}
	},
}

// Execute runs the root command. It is called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if rt != nil && rt.logger != nil {
			rt.logger.Error("command failed", slog.Any("error", err))
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg := config.NewDefault()

	// A private viper context locates the config file so the flag can
	// stay optional.
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("s3pipe")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.s3pipe")
	}
	if err := v.ReadInConfig(); err == nil {
		if err := cfg.LoadFromFile(v.ConfigFileUsed()); err != nil {
			return nil, err
		}
	} else if cfgFile != "" {
		return nil, fmt.Errorf("failed to load config %s: %w", cfgFile, err)
	}

	cfg.LoadFromEnv()
	applyFlagOverrides(cmd.Flags(), cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	closer, err := utils.SetupLogging(cfg.Global.Logging)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:       cfg,
		logger:    utils.NewComponentLogger("cli"),
		logCloser: closer,
	}

	if rootFlags.metricsPort > 0 {
		mcfg := metrics.NewDefaultConfig()
		mcfg.Port = cfg.Global.MetricsPort
		rt.collector, err = metrics.NewCollector(mcfg)
		if err != nil {
			return nil, err
		}
		if err := rt.collector.Start(context.Background()); err != nil {
			return nil, err
		}
	} else {
		rt.collector, _ = metrics.NewCollector(&metrics.Config{Enabled: false})
	}

	return rt, nil
}

func applyFlagOverrides(flags *pflag.FlagSet, cfg *config.Configuration) {
	if flags.Changed("bucket") {
		cfg.Transfer.Bucket = rootFlags.bucket
	}
	if flags.Changed("host") {
		cfg.S3.Host = rootFlags.host
	}
	if flags.Changed("proxy") {
		cfg.S3.Proxy = rootFlags.proxy
	}
	if flags.Changed("walrus") {
		cfg.S3.IsWalrus = rootFlags.walrus
	}
	if flags.Changed("https") {
		cfg.S3.IsHTTPS = rootFlags.https
	}
	if flags.Changed("pool-size") {
		cfg.Transfer.PoolSize = rootFlags.poolSize
	}
	if flags.Changed("concurrency") {
		cfg.Transfer.Concurrency = rootFlags.concurrency
	}
	if flags.Changed("log-level") {
		cfg.Global.Logging.Level = rootFlags.logLevel
	}
	if flags.Changed("metrics-port") {
		cfg.Global.MetricsPort = rootFlags.metricsPort
	}
}

// newPool builds the connection pool from the effective config.
func (rt *runtime) newPool() (*s3.ConnectionPool, error) {
	pool, err := s3.NewConnectionPool(rt.cfg.Transfer.PoolSize, rt.cfg.S3)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// borrow takes conns out of the pool, tracing each when --trace is
// set. The caller must return them with release.
func (rt *runtime) borrow(ctx context.Context, pool *s3.ConnectionPool, n int) ([]*s3.Connection, error) {
	conns := make([]*s3.Connection, 0, n)
	for i := 0; i < n; i++ {
		conn, err := pool.Get(ctx)
		if err != nil {
			release(pool, conns)
			return nil, err
		}
		if rootFlags.trace {
			traceLogger := utils.NewComponentLogger("trace")
			conn.SetTraceCallback(func(line string) {
				traceLogger.Debug(line)
			})
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

func release(pool *s3.ConnectionPool, conns []*s3.Connection) {
	for _, conn := range conns {
		pool.Put(conn)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./s3pipe.yaml)")
	pf.StringVarP(&rootFlags.bucket, "bucket", "b", "", "bucket to operate on")
	pf.StringVar(&rootFlags.host, "host", "", "endpoint host")
	pf.StringVar(&rootFlags.proxy, "proxy", "", "proxy host[:port]")
	pf.BoolVar(&rootFlags.walrus, "walrus", false, "target a Walrus endpoint")
	pf.BoolVar(&rootFlags.https, "https", false, "use HTTPS")
	pf.IntVar(&rootFlags.poolSize, "pool-size", 0, "connection pool size")
	pf.IntVarP(&rootFlags.concurrency, "concurrency", "c", 0, "requests kept in flight")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.IntVar(&rootFlags.metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port")
	pf.BoolVar(&rootFlags.trace, "trace", false, "log wire-level trace lines at debug level")
}
