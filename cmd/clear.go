package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all indexed files and chunks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagYes {
			return fmt.Errorf("refusing to clear the index without --yes")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		manager, err := newManager(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = manager.Close() }()

		if err := manager.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Index cleared.")
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolVar(&flagYes, "yes", false, "confirm clearing the index")
	rootCmd.AddCommand(clearCmd)
}
