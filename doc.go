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

// Package procvisor is a small process supervisor.  It launches a fixed
// set of local child processes declared in a configuration file, copies
// their output into a shared timestamped log, and relaunches each one
// after it exits, after a per-process delay.  This is similar in spirit
// to the runtime mode of process managers such as pm2, without any
// daemon, clustering or deployment machinery.
//
// The pieces are usable separately:  LoadConfigFile produces validated
// ProcessSpecs, StartProcess runs one of them as a Process, Decide is the
// restart policy, Sink collects output, and Supervisor ties them
// together in a single event loop.
//
// The rest sub-package exposes a running Supervisor over HTTP, and the
// procvisor command is the usual way to run one.
package procvisor
