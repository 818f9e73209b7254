package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/korovkin/limiter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/netatmo-cli/internal/pkg/logging"
	"github.com/jake-scott/netatmo-cli/internal/pkg/netatmo"
	"github.com/jake-scott/netatmo-cli/internal/pkg/units"
)

const maxConcurrentStatusCalls = 5

var _statusCmdOpts struct {
	homeID string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the live state of home devices",
	Long: `Show the live state of the rooms and modules in one home, or in
every home on the account when --home is not given.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doStatus(); err != nil {
			return err
		}

		return nil
	},

	PreRunE: requireCredentials,
}

func init() {
	statusCmd.Flags().StringVar(&_statusCmdOpts.homeID, "home", "", "home ID (default: all homes)")

	errPanic(viper.GetViper().BindPFlag("netatmo.home-id", statusCmd.Flags().Lookup("home")))

	rootCmd.AddCommand(statusCmd)
}

func doStatus() error {
	client := newAPIClient()
	ctx := context.Background()

	if homeID := viper.GetString("netatmo.home-id"); homeID != "" {
		status, err := client.HomeStatus(ctx, homeID)
		if err != nil {
			return err
		}
		printHomeStatus(status)
		return nil
	}

	homes, err := client.HomesData(ctx)
	if err != nil {
		return err
	}

	// One homestatus call per home; the calls share the session's token,
	// so a stale token triggers a single shared refresh
	limit := limiter.NewConcurrencyLimiter(maxConcurrentStatusCalls)

	var mu sync.Mutex
	statuses := make(map[string]*netatmo.HomeStatus, len(homes))
	failures := make(map[string]error)

	for _, home := range homes {
		home := home
		limit.ExecuteWithTicket(func(ticket int) {
			logging.Logger().Debugf("status-goroutine %d: fetching home %s", ticket, home.ID)

			status, err := client.HomeStatus(ctx, home.ID)

			mu.Lock()
			if err != nil {
				failures[home.ID] = err
			} else {
				statuses[home.ID] = status
			}
			mu.Unlock()
		})
	}
	limit.Wait()

	for _, home := range homes {
		if err, ok := failures[home.ID]; ok {
			return errors.Wrapf(err, "fetching status of home %s", home.Name)
		}

		fmt.Printf("Home: %s (%s)\n", home.Name, home.ID)
		printHomeStatus(statuses[home.ID])
	}

	return nil
}

func printHomeStatus(status *netatmo.HomeStatus) {
	for _, room := range status.Rooms {
		fmt.Printf("  room %s: %s (setpoint %s, mode %s)\n",
			room.ID,
			units.FmtFloat(room.ThermMeasuredTemperature, nil, "°C"),
			units.FmtFloat(room.ThermSetpointTemperature, nil, "°C"),
			orDefault(room.ThermSetpointMode, units.Missing))
	}

	for _, module := range status.Modules {
		reachable := units.Missing
		if module.Reachable != nil {
			reachable = fmt.Sprintf("%t", *module.Reachable)
		}
		fmt.Printf("  module %s [%s]: reachable %s  battery %d  rf %d\n",
			module.ID, module.Type, reachable, module.BatteryLevel, module.RFStrength)
	}
}
