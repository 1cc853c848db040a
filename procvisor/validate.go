// Copyright 2026 The Procvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config>",
	Short: "Check a configuration file without running it",
	Long: `Load and check a configuration file, listing every problem found.

Exit status is 0 if the configuration is valid, and 2 if it is not.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(args[0])
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Name", "Launch", "Command", "Restart delay", "Raw"})
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		for _, s := range cfg.Specs {
			table.Append([]string{
				s.Name(),
				s.Launch().Kind.String(),
				strings.Join(s.Argv(), " "),
				s.RestartDelay().String(),
				strconv.FormatBool(s.RawOutput()),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
