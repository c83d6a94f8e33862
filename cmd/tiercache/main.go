// Command tiercache inspects and exercises a tiered cache described by a
// config file: it reads, writes and purges keys of the backing store
// through an engine and runs a synthetic load to size tiers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentuity/tiercache/cache"
	"github.com/agentuity/tiercache/config"
	"github.com/agentuity/tiercache/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "tiercache",
	Short:         "Inspect and exercise a tiered cache",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default $"+config.EnvConfig+" or "+config.DefaultPath+")")
	rootCmd.PersistentFlags().String("env-file", ".env", "file of KEY=value pairs available to ${NAME} references in the config")
	rootCmd.PersistentFlags().String("log-level", "", "log level, overrides the config file and $"+logger.EnvLogLevel)
}

// flagOrEnv returns the flag value if set, then the environment value, then defaultValue.
func flagOrEnv(cmd *cobra.Command, flagName, envName, defaultValue string) string {
	if v, _ := cmd.Flags().GetString(flagName); v != "" {
		return v
	}
	if v, ok := os.LookupEnv(envName); ok && v != "" {
		return v
	}
	return defaultValue
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	vars, err := config.ParseEnvFile(envFile)
	if err != nil {
		return nil, err
	}
	path := config.Path(flagOrEnv(cmd, "config", config.EnvConfig, ""))
	c, err := config.Load(path, config.MapLookup(vars))
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		c.Log.Level = level
	}
	return c, nil
}

// openEngine builds the configured engine. The returned function closes it
// and must be called so queued writes reach the store.
func openEngine(cmd *cobra.Command, reg prometheus.Registerer) (*cache.Engine, *config.Config, func(), error) {
	c, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	log := c.Logger()
	e, closer, err := c.NewEngine(cmd.Context(), log, reg)
	if err != nil {
		return nil, nil, nil, err
	}
	return e, c, func() {
		if err := closer(); err != nil {
			log.Error("closing cache: %s", err)
		}
	}, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		showError("%s", err)
		cancel()
		os.Exit(1)
	}
}

func printValue(v any) {
	switch val := v.(type) {
	case string:
		fmt.Println(val)
	case []byte:
		fmt.Println(string(val))
	default:
		fmt.Printf("%v\n", val)
	}
}
