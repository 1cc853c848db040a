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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/procvisor/procvisor/procvisor/util"
	"github.com/procvisor/procvisor/rest"
)

var (
	logsFollow bool
	logsLines  int
)

var logsCmd = &cobra.Command{
	Use:   "logs [<name>]",
	Short: "Show recent process output",
	Long: `Show recent output of the named process, or of every process when no
name is given.  With --follow, keep printing new output as it arrives.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "follow new output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 0, "only show the last N lines (0 for all)")
	rootCmd.AddCommand(logsCmd)
}

// printNew prints the records after id last, and returns the new last id.
func printNew(recs []rest.LogRecord, last int64, withName bool) int64 {
	for i := range recs {
		if recs[i].Id <= last {
			continue
		}
		fmt.Println(util.FormatRecord(&recs[i], withName))
		last = recs[i].Id
	}
	return last
}

func runLogs(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	withName := name == ""

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	info, err := client.GetLog(ctx, name)
	cancel()
	if err != nil {
		return err
	}
	recs := info.Records
	if logsLines > 0 && len(recs) > logsLines {
		recs = recs[len(recs)-logsLines:]
	}
	printNew(recs, 0, withName)
	var last int64
	if len(info.Records) != 0 {
		last = info.Records[len(info.Records)-1].Id
	}
	if !logsFollow {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	for {
		info, err = client.WatchLog(ctx, name, info)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		last = printNew(info.Records, last, withName)
	}
}
