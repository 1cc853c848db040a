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
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/procvisor/procvisor/procvisor/util"
	"github.com/procvisor/procvisor/rest"
)

var statusCmd = &cobra.Command{
	Use:   "status [<name> ...]",
	Short: "Show the status of supervised processes",
	RunE:  runStatus,
}

var infoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show more detailed process info",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(infoCmd)
}

func since(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	infos, err := client.Processes(ctx)
	if err != nil {
		return err
	}
	if len(args) != 0 {
		want := make(map[string]bool)
		for _, n := range args {
			want[n] = true
		}
		sel := infos[:0]
		for _, info := range infos {
			if want[info.Name] {
				sel = append(sel, info)
				delete(want, info.Name)
			}
		}
		for n := range want {
			fmt.Fprintf(os.Stderr, "No such process: %s\n", n)
		}
		infos = sel
	}
	util.SortProcesses(infos)
	showStatus(infos)
	return nil
}

func showStatus(infos []rest.ProcessInfo) {
	now := time.Now()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Status", "PID", "Launches", "Exit", "Uptime", "Updated", "Reason"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for i := range infos {
		info := &infos[i]
		up := util.Uptime(info, now)
		// for printing second resolution is sufficient
		up -= up % time.Second
		table.Append([]string{
			info.Name,
			util.Status(info),
			util.Pid(info),
			strconv.Itoa(info.Launches),
			util.ExitCode(info),
			util.FormatDuration(up),
			since(info.Updated),
			info.Reason,
		})
	}
	table.Render()
}

func runInfo(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	s, err := client.Process(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Name:          %s\n", s.Name)
	fmt.Printf("Status:        %s\n", util.Status(s))
	fmt.Printf("Reason:        %s\n", s.Reason)
	fmt.Printf("Command:       %s\n", strings.Join(s.Command, " "))
	fmt.Printf("PID:           %s\n", util.Pid(s))
	fmt.Printf("Launch ID:     %s\n", s.LaunchID)
	fmt.Printf("Launches:      %d\n", s.Launches)
	fmt.Printf("Last exit:     %s\n", util.ExitCode(s))
	fmt.Printf("Started:       %s\n", since(s.StartTime))
	fmt.Printf("Exited:        %s\n", since(s.ExitTime))
	fmt.Printf("Next launch:   %s\n", since(s.NextLaunch))
	fmt.Printf("Restart delay: %v\n", time.Duration(s.RestartDelayMs)*time.Millisecond)
	return nil
}
