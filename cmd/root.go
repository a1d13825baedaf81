package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/abhisek/mathdrill/internal/config"
	"github.com/abhisek/mathdrill/internal/store"
)

var (
	cfgFile string
	v       = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "mathdrill",
	Short: "Timed math practice sessions in the terminal",
	Long: "mathdrill runs paginated, timed math practice sessions against a delivery API.\n" +
		"Answers are saved as you type; pages lock once submitted.",
	SilenceUsage: true,
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context so sessions close cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Path to a config file (yaml, toml or json)")
	pf.String("server", "", "Delivery API base URL (overrides server.base_url)")
	pf.String("token", "", "Bearer token for the delivery API (overrides server.token)")
	pf.String("db", "", "Path to the SQLite journal (overrides MATHDRILL_DB)")
	pf.String("log-file", "", "Log file path (overrides log.file)")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	if err := bindFlags(v, pf); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(devserverCmd)
	rootCmd.AddCommand(versionCmd)
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"server":       "server.base_url",
	"token":        "server.token",
	"db":           "db",
	"log-file":     "log.file",
	"log-level":    "log.level",
	"metrics-addr": "metrics_addr",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		f := fs.Lookup(flag)
		if f == nil {
			return fmt.Errorf("flag --%s not defined", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}

// loadConfig merges defaults, the config file, environment and flags.
func loadConfig() (*config.Config, error) {
	return config.Load(v, cfgFile)
}

// resolveDBPath returns the configured journal path (--db, MATHDRILL_DB or
// the db key), falling back to the default XDG path.
func resolveDBPath(cfg *config.Config) (string, error) {
	if cfg.DB != "" {
		return cfg.DB, store.EnsureDir(cfg.DB)
	}
	return store.DefaultDBPath()
}
