package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var _homesCmdOpts struct {
	asJSON bool
}

var homesCmd = &cobra.Command{
	Use:   "homes",
	Short: "List homes and the devices registered in them",

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doHomes(); err != nil {
			return err
		}

		return nil
	},

	PreRunE: requireCredentials,
}

func init() {
	homesCmd.Flags().BoolVar(&_homesCmdOpts.asJSON, "json", false, "return home data as JSON")

	errPanic(viper.GetViper().BindPFlag("output.homes-json", homesCmd.Flags().Lookup("json")))

	rootCmd.AddCommand(homesCmd)
}

func doHomes() error {
	client := newAPIClient()

	homes, err := client.HomesData(context.Background())
	if err != nil {
		return err
	}

	if viper.GetBool("output.homes-json") {
		b, err := json.MarshalIndent(homes, "", "    ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}

	for _, home := range homes {
		fmt.Printf("Home: %s (%s)\n", home.Name, home.ID)

		roomNames := make(map[string]string, len(home.Rooms))
		for _, room := range home.Rooms {
			roomNames[room.ID] = room.Name
			fmt.Printf("  room: %s (%s)\n", room.Name, room.ID)
		}

		for _, module := range home.Modules {
			location := ""
			if name, ok := roomNames[module.RoomID]; ok {
				location = " in " + name
			}
			fmt.Printf("  device: %s [%s] (%s)%s\n", module.Name, module.Type, module.ID, location)
		}
	}

	return nil
}
