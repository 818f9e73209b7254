package cmd

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/netatmo-cli/internal/pkg/netatmo"
	"github.com/jake-scott/netatmo-cli/internal/pkg/trmnl"
	"github.com/jake-scott/netatmo-cli/internal/pkg/units"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push current station readings to a TRMNL display",
	Long: `Fetch the first weather station's readings, convert them to
imperial units and push them as merge variables to the configured TRMNL
webhook.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doPush(); err != nil {
			return err
		}

		return nil
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCredentials(cmd, args); err != nil {
			return err
		}
		return checkRequiredFlags("trmnl.webhook-url")
	},
}

func init() {
	pushCmd.Flags().String("webhook-url", "", "TRMNL webhook URL")

	errPanic(viper.GetViper().BindPFlag("trmnl.webhook-url", pushCmd.Flags().Lookup("webhook-url")))

	rootCmd.AddCommand(pushCmd)
}

func doPush() error {
	client := newAPIClient()

	stations, err := client.StationsData(context.Background())
	if err != nil {
		return err
	}
	if len(stations) == 0 {
		return errors.New("no weather stations registered on this account")
	}

	vars := mergeVariables(&stations[0])

	pusher := trmnl.NewClient(viper.GetString("trmnl.webhook-url")).
		WithTimeout(viper.GetDuration("netatmo.api-timeout"))
	if err := pusher.Push(vars); err != nil {
		return err
	}

	fmt.Printf("pushed %d variables to TRMNL\n", len(vars))
	return nil
}

// mergeVariables flattens one station's readings into the imperial-unit
// variable set the TRMNL template expects
func mergeVariables(st *netatmo.Station) map[string]string {
	base := st.DashboardData

	vars := map[string]string{
		"indoor_temp":      units.FmtFloat(base.Temperature, units.CToF, "°F"),
		"indoor_humidity":  units.FmtInt(base.Humidity, "%"),
		"co2":              units.FmtInt(base.CO2, " ppm"),
		"air_quality":      units.AirQuality(base.CO2),
		"pressure":         units.FmtFloat(base.Pressure, nil, " mbar"),
		"noise":            units.FmtInt(base.Noise, " dB"),
		"outdoor_temp":     units.Missing,
		"outdoor_humidity": units.Missing,
		"rain_1h":          units.Missing,
		"rain_24h":         units.Missing,
		"wind_speed":       units.Missing,
		"gust_speed":       units.Missing,
		"wind_angle":       units.Missing,
		"gust_angle":       units.Missing,
	}

	if outdoor := st.ModuleOfType(netatmo.ModuleTypeOutdoor); outdoor != nil {
		d := outdoor.DashboardData
		vars["outdoor_temp"] = units.FmtFloat(d.Temperature, units.CToF, "°F")
		vars["outdoor_humidity"] = units.FmtInt(d.Humidity, "%")
	}

	if rain := st.ModuleOfType(netatmo.ModuleTypeRain); rain != nil {
		d := rain.DashboardData
		vars["rain_1h"] = units.FmtFloat(d.RainSum1h, units.MmToIn, " in")
		vars["rain_24h"] = units.FmtFloat(d.RainSum24h, units.MmToIn, " in")
	}

	if wind := st.ModuleOfType(netatmo.ModuleTypeWind); wind != nil {
		d := wind.DashboardData
		vars["wind_speed"] = units.FmtFloat(d.WindStrength, units.KmhToMph, " mph")
		vars["gust_speed"] = units.FmtFloat(d.GustStrength, units.KmhToMph, " mph")
		vars["wind_angle"] = units.FmtInt(d.WindAngle, "°")
		vars["gust_angle"] = units.FmtInt(d.GustAngle, "°")
	}

	vars["message"] = fmt.Sprintf("%s out / %s in\n%s out / %s in\n%s wind, gusts %s\nrain: %s (1h), %s (24h)",
		vars["outdoor_temp"], vars["indoor_temp"],
		vars["outdoor_humidity"], vars["indoor_humidity"],
		vars["wind_speed"], vars["gust_speed"],
		vars["rain_1h"], vars["rain_24h"])

	return vars
}
