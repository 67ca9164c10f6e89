package list

import (
	"github.com/spf13/cobra"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List coremeter related settings",
		Long: `List settings that coremeter can use.
Currently supports listing:
  - Available AWS credential profiles (for s3:// inputs and S3 report output)`,
	}

	cmd.AddCommand(NewProfilesCmd())

	return cmd
}
