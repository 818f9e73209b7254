package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var _setModeCmdOpts struct {
	homeID string
	mode   string
}

var setModeCmd = &cobra.Command{
	Use:   "set-mode",
	Short: "Switch the heating mode of a home",
	Long: `Switch the heating mode of a whole home.  Valid modes are
'schedule', 'away' and 'hg' (frost guard).

This is a control command: it is sent exactly once and never retried on
transport errors.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doSetMode(); err != nil {
			return err
		}

		return nil
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCredentials(cmd, args); err != nil {
			return err
		}
		return checkRequiredFlags("netatmo.set-mode.home-id", "netatmo.set-mode.mode")
	},
}

var _setTempCmdOpts struct {
	homeID string
	roomID string
	temp   float64
}

var setTempCmd = &cobra.Command{
	Use:   "set-temp",
	Short: "Set a manual setpoint temperature for a room",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doSetTemp(); err != nil {
			return err
		}

		return nil
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCredentials(cmd, args); err != nil {
			return err
		}
		return checkRequiredFlags("netatmo.set-temp.home-id", "netatmo.set-temp.room-id")
	},
}

func init() {
	setModeCmd.Flags().StringVar(&_setModeCmdOpts.homeID, "home", "", "home ID")
	setModeCmd.Flags().StringVar(&_setModeCmdOpts.mode, "mode", "", "heating mode: schedule, away or hg")

	errPanic(viper.GetViper().BindPFlag("netatmo.set-mode.home-id", setModeCmd.Flags().Lookup("home")))
	errPanic(viper.GetViper().BindPFlag("netatmo.set-mode.mode", setModeCmd.Flags().Lookup("mode")))

	setTempCmd.Flags().StringVar(&_setTempCmdOpts.homeID, "home", "", "home ID")
	setTempCmd.Flags().StringVar(&_setTempCmdOpts.roomID, "room", "", "room ID")
	setTempCmd.Flags().Float64Var(&_setTempCmdOpts.temp, "temp", 19.0, "setpoint temperature in °C")

	errPanic(viper.GetViper().BindPFlag("netatmo.set-temp.home-id", setTempCmd.Flags().Lookup("home")))
	errPanic(viper.GetViper().BindPFlag("netatmo.set-temp.room-id", setTempCmd.Flags().Lookup("room")))
	errPanic(viper.GetViper().BindPFlag("netatmo.set-temp.temp", setTempCmd.Flags().Lookup("temp")))

	rootCmd.AddCommand(setModeCmd)
	rootCmd.AddCommand(setTempCmd)
}

func doSetMode() error {
	client := newAPIClient()

	homeID := viper.GetString("netatmo.set-mode.home-id")
	mode := viper.GetString("netatmo.set-mode.mode")

	if err := client.SetThermMode(context.Background(), homeID, mode); err != nil {
		return err
	}

	fmt.Printf("home %s switched to mode %s\n", homeID, mode)
	return nil
}

func doSetTemp() error {
	client := newAPIClient()

	homeID := viper.GetString("netatmo.set-temp.home-id")
	roomID := viper.GetString("netatmo.set-temp.room-id")
	temp := viper.GetFloat64("netatmo.set-temp.temp")

	if err := client.SetRoomThermpoint(context.Background(), homeID, roomID, temp); err != nil {
		return err
	}

	fmt.Printf("room %s setpoint set to %.1f°C\n", roomID, temp)
	return nil
}
