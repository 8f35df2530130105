// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/sirseerhq/searchdl/internal/splunk"
)

const rawModeQuestion = "Continue anyway with 'log' mode? This likely won't work."

// confirmRawMode warns that raw mode and reshaping commands rarely work
// together and asks whether to go on. The answer may be piped in; input that
// ends without one stops the run. It returns false when the run should stop
// without an error.
func confirmRawMode(ctx context.Context, env *runEnv, logger *zap.Logger, query string, assumeYes bool) (bool, error) {
	rule := strings.Repeat("=", 80)
	logger.Warn(rule)
	logger.Warn("WARNING: You are using 'log' mode with transforming commands in your query.")
	logger.Warn("Raw log mode is incompatible with commands like 'table', 'stats', 'chart', 'rex', etc.")
	logger.Warn("These commands transform the data making raw logs unavailable.")
	logger.Warn("RECOMMENDATIONS:")
	logger.Warn("1. Use 'csv' or 'json' mode instead (change 'output_mode' in the configuration)")
	logger.Warn("2. Or remove transforming commands from your query (everything after the first pipe '|')")
	logger.Warn("Modified query without transforming commands would be:")
	logger.Warn("  " + splunk.FirstStage(query))
	logger.Warn(rule)

	if assumeYes {
		logger.Info("Continuing because --yes was given")
		return true, nil
	}
	if !env.isTerminal() {
		logger.Info("stdin is not a terminal, reading the confirmation from piped input")
	}

	ok, err := askYesNo(ctx, env.stdin, env.stdout, rawModeQuestion)
	if err != nil {
		return false, err
	}
	if !ok {
		logger.Info("Aborting run. Please modify your configuration and try again.")
	}
	return ok, nil
}

// askYesNo prints question and waits for one line of input. Only "y" and
// "yes" (any case) are a yes. Input ending without an answer and cancellation
// of ctx, e.g. by an interrupt, count as no.
func askYesNo(ctx context.Context, in io.Reader, out io.Writer, question string) (bool, error) {
	_, _ = fmt.Fprintf(out, "%s (y/n): ", question)

	type answer struct {
		line string
		err  error
	}
	answers := make(chan answer, 1)

	// The read cannot be cancelled, so it runs on its own goroutine and is
	// abandoned when ctx ends first.
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		answers <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		_, _ = fmt.Fprintln(out)
		return false, nil
	case a := <-answers:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return false, fmt.Errorf("read confirmation: %w", a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
