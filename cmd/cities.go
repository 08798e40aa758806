package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/gravitas-eo/urbanheat-cli/internal/registry"
)

var citiesCmd = &cobra.Command{
	Use:   "cities",
	Short: "List the registered cities and their study areas",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("cities"); err != nil {
			return err
		}

		reg, err := loadRegistry()
		if err != nil {
			return err
		}

		cities := make([]registry.City, 0, len(reg))
		for _, name := range reg.Names() {
			c, _ := reg.Lookup(name)
			cities = append(cities, c)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cities)
	},
}

func init() {
	rootCmd.AddCommand(citiesCmd)
}
