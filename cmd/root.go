package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/netatmo-cli/internal/pkg/logging"
	"github.com/jake-scott/netatmo-cli/internal/pkg/netatmo"
	"github.com/jake-scott/netatmo-cli/internal/pkg/netauth"
)

var _rootCmdOpts struct {
	cfgFile string
	debug   bool
}

var rootCmd = &cobra.Command{
	Use:   "netatmo-cli",
	Short: "Query and control Netatmo smart-home devices",
	Long: `netatmo-cli reads weather station data and controls Energy devices
through the Netatmo cloud API, handling OAuth2 login and token refresh
transparently.`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _rootCmdOpts.debug {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return logging.Configure(viper.GetViper())
	},
}

// Execute runs the root command; any unrecovered error exits non-zero
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&_rootCmdOpts.cfgFile, "config", "", "config file (default $HOME/.netatmo-cli.yaml)")
	rootCmd.PersistentFlags().BoolVar(&_rootCmdOpts.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Duration("api-timeout", time.Second*15, "maximum duration of a Netatmo API call, eg. 1m or 10s")
	rootCmd.PersistentFlags().String("token-file", "", "file to stash OAuth tokens between invocations")

	errPanic(viper.GetViper().BindPFlag("netatmo.api-timeout", rootCmd.PersistentFlags().Lookup("api-timeout")))
	errPanic(viper.GetViper().BindPFlag("netatmo.token-file", rootCmd.PersistentFlags().Lookup("token-file")))

	errPanic(viper.GetViper().BindEnv("netatmo.client-id", "NETATMO_CLIENT_ID"))
	errPanic(viper.GetViper().BindEnv("netatmo.client-secret", "NETATMO_CLIENT_SECRET"))
	errPanic(viper.GetViper().BindEnv("netatmo.username", "NETATMO_USERNAME"))
	errPanic(viper.GetViper().BindEnv("netatmo.password", "NETATMO_PASSWORD"))
	errPanic(viper.GetViper().BindEnv("trmnl.webhook-url", "TRMNL_WEBHOOK_URL"))
}

func initConfig() {
	if _rootCmdOpts.cfgFile != "" {
		viper.SetConfigFile(_rootCmdOpts.cfgFile)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".netatmo-cli")
		}
	}

	if err := viper.ReadInConfig(); err == nil {
		logging.Logger().Debugf("using config file %s", viper.ConfigFileUsed())
	}
}

func checkRequiredFlags(needFlags ...string) error {
	missingFlags := []string{}

	for _, f := range needFlags {
		if viper.GetString(f) == "" {
			missingFlags = append(missingFlags, f)
		}
	}

	if len(missingFlags) > 0 {
		itemPlural := "item"
		if len(missingFlags) > 1 {
			itemPlural = "items"
		}
		return fmt.Errorf("required config %s `%s` not set", itemPlural, strings.Join(missingFlags, "`, `"))
	}

	return nil
}

// requireCredentials is the PreRunE for every command that talks to the
// Netatmo API; missing credentials are a fatal configuration error raised
// before any network call
func requireCredentials(cmd *cobra.Command, args []string) error {
	return checkRequiredFlags("netatmo.client-id", "netatmo.client-secret",
		"netatmo.username", "netatmo.password")
}

// newAPIClient wires a session and gateway from the current configuration
func newAPIClient() *netatmo.Client {
	creds := netauth.Credentials{
		ClientID:     viper.GetString("netatmo.client-id"),
		ClientSecret: viper.GetString("netatmo.client-secret"),
		Username:     viper.GetString("netatmo.username"),
		Password:     viper.GetString("netatmo.password"),
	}

	apiTimeout := viper.GetDuration("netatmo.api-timeout")

	session := netauth.NewSession(creds).WithTimeout(apiTimeout)
	if tokenFile := viper.GetString("netatmo.token-file"); tokenFile != "" {
		session = session.WithTokenFile(tokenFile)
	}

	return netatmo.NewClient(session).WithTimeout(apiTimeout)
}

func errPanic(err error) {
	if err != nil {
		panic(err)
	}
}
