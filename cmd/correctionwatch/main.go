package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"correctionwatch/internal/app"
	"correctionwatch/internal/config"
	logx "correctionwatch/pkg/logx"
)

var version = "dev"

// cli carries the settings shared by every subcommand. Flags and CW_*
// environment variables are resolved through v.
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	root := &cobra.Command{
		Use:           "correctionwatch",
		Short:         "Watch a published result until a correction shows up",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.initConfig()
		},
	}

	root.PersistentFlags().String("config", "config.yaml", "path to config yaml (env CW_CONFIG)")
	root.PersistentFlags().String("log-level", "", "override logging.level (env CW_LOG_LEVEL)")
	_ = c.v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = c.v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		runCmd(c),
		checkCmd(c),
		validateCmd(c),
		historyCmd(c),
		testNotifyCmd(c),
		versionCmd(),
	)
	return root
}

func (c *cli) initConfig() error {
	c.v.SetEnvPrefix("CW")
	c.v.AutomaticEnv()
	if lvl := c.v.GetString("log_level"); lvl != "" && !logx.ValidLevel(lvl) {
		return fmt.Errorf("invalid log level: %s", lvl)
	}
	return nil
}

// lookup feeds config.ApplyEnv. The log level comes through viper so the
// flag beats the environment.
func (c *cli) lookup(key string) (string, bool) {
	if slices.Contains(config.EnvLogLevel, key) {
		v := c.v.GetString("log_level")
		return v, v != ""
	}
	return os.LookupEnv(key)
}

func (c *cli) manager() *config.ConfigManager {
	m := config.NewConfigManager(c.v.GetString("config"))
	m.SetLookup(c.lookup)
	return m
}

// load reads and fully validates the config for one-shot commands.
func (c *cli) load() (*config.Config, logx.Logger, error) {
	cfg, err := c.manager().Load()
	if err != nil {
		return nil, logx.Logger{}, err
	}
	if err := app.Validate(cfg); err != nil {
		return nil, logx.Logger{}, err
	}
	return cfg, logx.NewWriter(os.Stderr, cfg.Logging.Level), nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
