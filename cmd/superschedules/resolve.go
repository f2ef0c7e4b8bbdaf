package superschedules

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SuperSchedules/superschedules/internal/container"
)

var defaultState string

var resolveCmd = &cobra.Command{
	Use:   "resolve [place]",
	Short: "Resolve a place name against the gazetteer and print the result",
	Example: `  superschedules resolve "Springfield"
  superschedules resolve "Newton" --default-state KS`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		c, err := container.NewContainer(cfg, logger)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx := cmd.Context()
		if !c.WaitForDB(ctx) {
			return errors.New("database not ready after waiting")
		}
		if err := c.Locations.Load(ctx); err != nil {
			return err
		}

		res := c.Locations.ResolveWithDefaultState(ctx, strings.Join(args, " "), defaultState)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringVar(&defaultState, "default-state", "", "state to assume when the query has none")
}
