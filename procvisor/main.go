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

// Command procvisor runs and inspects a process supervisor.
//
// "procvisor start <config>" runs the supervisor in the foreground until
// it is interrupted or told to stop.  The other subcommands talk to a
// running supervisor over its control API:
//
//	stop                 - shut the supervisor down
//	status               - list all processes
//	info <name>          - show more detailed process info
//	logs [<name>]        - show recent output, optionally following it
//	flush [<name>]       - discard remembered output
//	top                  - full screen live view
//	validate <config>    - check a configuration file
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/procvisor/procvisor/rest"
)

var (
	addr = "http://127.0.0.1:8321"
	auth = ""
)

var rootCmd = &cobra.Command{
	Use:   "procvisor",
	Short: "Keep a fixed set of local processes running",
	Long: `procvisor launches the processes declared in a configuration file,
relaunches each one after it exits, and collects their output in a
single timestamped log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitError makes the command exit with a specific status.  Err, if
// set, has already been reported.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		var ee *ExitError
		if errors.As(err, &ee) {
			return ee.Code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newClient() (*rest.Client, error) {
	client := rest.NewClient(nil, addr)
	if auth != "" {
		a := strings.SplitN(auth, ":", 2)
		if len(a) != 2 {
			return nil, errors.New("bad user:pass supplied")
		}
		client.SetAuth(a[0], a[1])
	}
	return client, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&addr, "addr", "a", addr, "control API address")
	rootCmd.PersistentFlags().StringVarP(&auth, "user", "u", auth, "user:pass authentication")
}

func main() {
	os.Exit(Execute())
}
