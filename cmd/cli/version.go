package cli

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/wagate/gateway/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		build := common.GetBuildInfo()

		return render(cmd, build, func(w io.Writer) {
			printf(w, "wagate %s\n", build.String())
			if len(build.GoVersion) > 0 {
				printf(w, "%s\n", mutedStyle.Render(build.GoVersion))
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
