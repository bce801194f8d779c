package main

import (
	"github.com/spf13/cobra"

	"teampulse/pkg/contracts"
)

// versionCmd shows the verbose version for diagnostic purposes.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of teampulse.",
	Long: `Display version information including build details.

Shows:
- Release version and stage
- Git commit hash
- Build timestamp
- Go runtime version
- Data format and API versions`,
	Run: func(cmd *cobra.Command, _ []string) {
		build := contracts.CurrentBuild()
		cmd.Printf("teampulse CLI\n")
		cmd.Printf("  Version: %s (%s)\n", build.Version, build.Stage)
		cmd.Printf("  Commit:  %s\n", build.GitCommit)
		cmd.Printf("  Built:   %s\n", build.BuildTime)
		cmd.Printf("  Runtime: %s on %s\n", build.GoVersion, build.Platform)
		cmd.Printf("  Formats: data %s, api %s\n", build.DataFormat, build.APIVersion)
	},
}
