// Copyright 2024 AgriGenius Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is agrictl, a command-line client for the AgriGenius flows.
// It lists the flow catalogue, renders prompts offline, runs flows against
// the configured model and summarises the invocation ledger.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/your-org/agrigenius/internal/bootstrap"
)

var version = "dev"

func main() {
	if err := newRootCmd(bootstrap.Build).Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
