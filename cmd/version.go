////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Handles command-line version functionality

package cmd

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Change this value to set the version for this build
const currentVersion = "1.0.0"

// Version returns the version string and the dependency list of the binary.
func Version() string {
	out := fmt.Sprintf("staffcomms v%s", currentVersion)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return out + "\n"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			out += " -- " + s.Value
		}
	}

	var deps strings.Builder
	for _, d := range info.Deps {
		fmt.Fprintf(&deps, "\t%s %s\n", d.Path, d.Version)
	}
	return fmt.Sprintf("%s\n\nDependencies:\n\n%s", out, deps.String())
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and dependency information for the staffcomms binary",
	Long:  `Print the version and dependency information for the staffcomms binary`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(Version())
	},
}
