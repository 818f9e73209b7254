package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/netatmo-cli/internal/pkg/netatmo"
	"github.com/jake-scott/netatmo-cli/internal/pkg/units"
)

var _stationsCmdOpts struct {
	imperial bool
	asJSON   bool
}

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "List weather stations and their current readings",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doStations(); err != nil {
			return err
		}

		return nil
	},

	PreRunE: requireCredentials,
}

func init() {
	stationsCmd.Flags().BoolVar(&_stationsCmdOpts.imperial, "imperial", false, "report readings in imperial units")
	stationsCmd.Flags().BoolVar(&_stationsCmdOpts.asJSON, "json", false, "return station data as JSON")

	errPanic(viper.GetViper().BindPFlag("output.imperial", stationsCmd.Flags().Lookup("imperial")))
	errPanic(viper.GetViper().BindPFlag("output.stations-json", stationsCmd.Flags().Lookup("json")))

	rootCmd.AddCommand(stationsCmd)
}

func doStations() error {
	client := newAPIClient()

	stations, err := client.StationsData(context.Background())
	if err != nil {
		return err
	}

	if viper.GetBool("output.stations-json") {
		b, err := json.MarshalIndent(stations, "", "    ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}

	imperial := viper.GetBool("output.imperial")
	for i := range stations {
		printStation(&stations[i], imperial)
	}

	return nil
}

func printStation(st *netatmo.Station, imperial bool) {
	fmt.Printf("Station: %s (%s)\n", st.StationName, st.ID)

	base := st.DashboardData
	updated := ""
	if base.TimeUTC != 0 {
		updated = "  at " + units.ClockTime(base.TimeUTC)
	}
	fmt.Printf("  %s: %s  humidity %s  CO2 %s (%s)  pressure %s  noise %s%s\n",
		orDefault(st.ModuleName, "indoor"),
		formatTemp(base.Temperature, imperial),
		units.FmtInt(base.Humidity, "%"),
		units.FmtInt(base.CO2, " ppm"),
		units.AirQuality(base.CO2),
		units.FmtFloat(base.Pressure, nil, " mbar"),
		units.FmtInt(base.Noise, " dB"),
		updated)

	if outdoor := st.ModuleOfType(netatmo.ModuleTypeOutdoor); outdoor != nil {
		d := outdoor.DashboardData
		fmt.Printf("  %s: %s  humidity %s\n",
			orDefault(outdoor.ModuleName, "outdoor"),
			formatTemp(d.Temperature, imperial),
			units.FmtInt(d.Humidity, "%"))
	}

	if rain := st.ModuleOfType(netatmo.ModuleTypeRain); rain != nil {
		d := rain.DashboardData
		fmt.Printf("  %s: %s (1h)  %s (24h)\n",
			orDefault(rain.ModuleName, "rain"),
			formatRain(d.RainSum1h, imperial),
			formatRain(d.RainSum24h, imperial))
	}

	if wind := st.ModuleOfType(netatmo.ModuleTypeWind); wind != nil {
		d := wind.DashboardData
		fmt.Printf("  %s: %s  gusts %s  angle %s\n",
			orDefault(wind.ModuleName, "wind"),
			formatWind(d.WindStrength, imperial),
			formatWind(d.GustStrength, imperial),
			units.FmtInt(d.WindAngle, "°"))
	}
}

func formatTemp(v *float64, imperial bool) string {
	if imperial {
		return units.FmtFloat(v, units.CToF, "°F")
	}
	return units.FmtFloat(v, nil, "°C")
}

func formatRain(v *float64, imperial bool) string {
	if imperial {
		return units.FmtFloat(v, units.MmToIn, " in")
	}
	return units.FmtFloat(v, nil, " mm")
}

func formatWind(v *float64, imperial bool) string {
	if imperial {
		return units.FmtFloat(v, units.KmhToMph, " mph")
	}
	return units.FmtFloat(v, nil, " km/h")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
