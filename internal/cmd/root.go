package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/antigravity/feed-gateway/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	Version   string
	BuildTime string
	cfgFile   string
)

var rootCmd = &cobra.Command{
	Use:   "feedgate",
	Short: "Credentialed access gateway for upstream result feeds",
	Long: `Feedgate authenticates callers by API key, enforces per-key IP and
domain whitelists, keeps usage counters and an audit trail, alerts the
operator on whitelist violations and proxies approved requests upstream.`,
	SilenceUsage: true,
	RunE:         runServe, // 默认启动服务器
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	rootCmd.Version = fmt.Sprintf("%s (built %s)", Version, BuildTime)
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// 全局标志
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-dir", "", "log directory (overrides logging.output)")
	viper.BindPFlag("log_dir", rootCmd.PersistentFlags().Lookup("log-dir"))

	// 服务器标志（直接在root命令使用）
	addServerFlags(rootCmd)
}

// addServerFlags registers the listener flags on cmd. They are bound to viper
// when cmd actually runs so root and serve do not fight over the binding.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "0.0.0.0", "server host")
	cmd.Flags().Int("port", 8080, "server port")
	cmd.Flags().String("mode", "release", "server mode (debug/release/test)")
}

func bindServerFlags(cmd *cobra.Command) {
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.mode", cmd.Flags().Lookup("mode"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./data")
		viper.AddConfigPath("$HOME/.feedgate")
	}

	// FEEDGATE_DATABASE_DSN -> database.dsn
	viper.SetEnvPrefix("feedgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 配置文件不存在时使用默认值
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig reads the merged viper state and applies flag-only overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dir := viper.GetString("log_dir"); dir != "" {
		cfg.Logging.Output = filepath.Join(dir, "feedgate.log")
	}
	return cfg, nil
}
