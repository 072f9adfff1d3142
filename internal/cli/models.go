package cli

import (
	"fmt"

	"github.com/jo-hoe/faceswap/internal/facemodel"
	"github.com/spf13/cobra"
)

func newModelsCmd(root *rootOptions) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Manage the model cache",
	}

	var quiet bool
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download missing detector, recognizer and swapper models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := facemodel.FetchAll(cmd.Context(), root.config.Models, nil, !quiet)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	fetchCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide download progress")

	modelsCmd.AddCommand(fetchCmd)
	return modelsCmd
}
