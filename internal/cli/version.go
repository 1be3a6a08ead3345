package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/docker/docker/api"
	"github.com/spf13/cobra"
)

// Set at build time via ldflags; filled from the module build info otherwise.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  usageArgs(cobra.NoArgs),
	Run: func(cmd *cobra.Command, args []string) {
		info, _ := debug.ReadBuildInfo()
		printVersion(cmd.OutOrStdout(), info)
	},
}

func printVersion(w io.Writer, info *debug.BuildInfo) {
	version, commit, date := Version, GitCommit, BuildDate
	if info != nil {
		if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "unknown":
				commit = s.Value
			case s.Key == "vcs.time" && date == "unknown":
				date = s.Value
			}
		}
	}

	fmt.Fprintf(w, "floki %s\n", version)
	fmt.Fprintf(w, "  commit:      %s\n", commit)
	fmt.Fprintf(w, "  built:       %s\n", date)
	fmt.Fprintf(w, "  go:          %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(w, "  docker api:  %s (negotiated down when the daemon is older)\n", api.DefaultVersion)
}
