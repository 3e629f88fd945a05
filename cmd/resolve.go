package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/echigo-image-server/internal/resolver"
)

// newResolveCmd creates the 'resolve' subcommand for a one-off lookup.
func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "resolve <product-page-url>",
		Short:   "Print the main image URL of a product page",
		Example: "  echigo-image resolve " + resolver.AllowedPrefix + "12345",
		Args:    cobra.ExactArgs(1),
		RunE:    runResolveCommand,
	}
}

func runResolveCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	imageURL, err := appInstance.Resolve(cmd.Context(), args[0])
	if err != nil {
		var resErr *resolver.Error
		if errors.As(err, &resErr) {
			fmt.Fprintln(cmd.ErrOrStderr(), resErr.Message)
			return &exitError{code: 1, msg: resErr.Message}
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), imageURL)
	return nil
}
