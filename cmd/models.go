package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the candidate reviewer models",
	RunE: func(cmd *cobra.Command, args []string) error {
		judge := viper.GetString("anthropic.judge_model")
		table := ui.Table([]string{"MODEL", "ROLE"})
		for _, m := range viper.GetStringSlice("models") {
			role := "candidate"
			if m == judge {
				role = "candidate + judge"
			}
			_ = table.Append([]string{m, role})
		}
		_ = table.Render()
		ui.Info("Judge model: %s", judge)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
