/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package sfmc drives the SFMC JavaScript API programs through node.
// sfmc 包通过 node 调用 SFMC 的 JavaScript API 程序。
//
// The scripts live in one directory and take the glider name as their first
// argument. Short commands succeed only when they exit 0 without output.
// 脚本位于同一目录，第一个参数为滑翔机名称；短命令仅在退出码为 0 且无输出时视为成功。
package sfmc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SFMC API scripts.
const (
	ScriptDialogData   = "output_glider_dialog_data.js"
	ScriptEvents       = "output_glider_script_events.js"
	ScriptUpdatePlan   = "update_waypoint_plan.js"
	ScriptDeployGoto   = "deploy_goto_file.js"
	DefaultNodeCommand = "/usr/bin/node"
)

var (
	// ErrAPIFailure is the banner the API prints when it cannot reach the glider.
	ErrAPIFailure = errors.New("sfmc: error attempting to get glider data")
	// ErrCommand reports a short command that failed or produced output.
	ErrCommand = errors.New("sfmc: command failed")
	// ErrNoData reports an API line without a data field.
	ErrNoData = errors.New("sfmc: no data in API line")
)

var (
	apiLinePattern = regexp.MustCompile(`^([{].+[}])\x00\n$`)
	failureBanner  = []byte("Error attempting to get glider data")
)

// DecodeAPIMessage decodes one API output line of the form `{json}\x00\n`.
// ok is false for lines that are not API lines.
// DecodeAPIMessage 解码一行 `{json}\x00\n` 形式的 API 输出。
func DecodeAPIMessage(line []byte) (msg map[string]any, ok bool, err error) {
	if bytes.HasPrefix(line, failureBanner) {
		return nil, false, ErrAPIFailure
	}
	m := apiLinePattern.FindSubmatch(line)
	if m == nil {
		return nil, false, nil
	}
	if err := json.Unmarshal(m[1], &msg); err != nil {
		return nil, false, fmt.Errorf("sfmc: decode API line: %w", err)
	}
	return msg, true, nil
}

// DecodeAPILine extracts the data string of a dialog API line.
// DecodeAPILine 从一行 API 输出中提取 data 字段。
func DecodeAPILine(line []byte) (data string, ok bool, err error) {
	msg, ok, err := DecodeAPIMessage(line)
	if !ok || err != nil {
		return "", false, err
	}
	raw, exists := msg["data"]
	if !exists {
		return "", false, ErrNoData
	}
	s, isString := raw.(string)
	if !isString {
		return "", false, fmt.Errorf("sfmc: data is %T: %w", raw, ErrNoData)
	}
	return s, true, nil
}

// Runner executes SFMC scripts with node.
// Runner 使用 node 执行 SFMC 脚本。
type Runner struct {
	NodeCommand string
	Dir         string
	// WaitDelay bounds how long a cancelled stream may keep its pipes open.
	WaitDelay time.Duration

	logger *zap.Logger
}

// NewRunner creates a Runner. An empty nodeCommand means DefaultNodeCommand.
func NewRunner(nodeCommand, dir string, logger *zap.Logger) *Runner {
	if nodeCommand == "" {
		nodeCommand = DefaultNodeCommand
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Runner{
		NodeCommand: nodeCommand,
		Dir:         dir,
		WaitDelay:   5 * time.Second,
		logger:      logger,
	}
}

func (r *Runner) command(ctx context.Context, script string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, r.NodeCommand, append([]string{script}, args...)...)
	cmd.Dir = r.Dir
	cmd.WaitDelay = r.WaitDelay
	setProcGroupAttr(cmd)
	return cmd
}

// Run executes a short script. It succeeds only on exit 0 with no output.
// Run 执行短命令，仅在退出码为 0 且无输出时成功。
func (r *Runner) Run(ctx context.Context, script string, args ...string) error {
	cmd := r.command(ctx, script, args...)
	out, err := cmd.CombinedOutput()
	if err == nil && len(out) == 0 {
		return nil
	}
	cmdline := strings.Join(cmd.Args, " ")
	r.logger.Error("SFMC command failed",
		zap.String("cmd", cmdline),
		zap.String("dir", r.Dir),
		zap.ByteString("output", out),
		zap.Error(err))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCommand, cmdline, err)
	}
	return fmt.Errorf("%w: %s: unexpected output %q", ErrCommand, cmdline, bytes.TrimSpace(out))
}

// Stream runs a long-lived script and calls onLine for every line of its
// combined stdout and stderr, newline included. It returns when the script
// exits, when onLine fails or when ctx is done.
// Stream 运行长期脚本，对每一行合并输出调用 onLine。
func (r *Runner) Stream(ctx context.Context, script string, args []string, onLine func(line []byte) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := r.command(ctx, script, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("sfmc: stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("sfmc: start %s: %w", script, err)
	}
	r.logger.Info("SFMC stream started",
		zap.String("script", script),
		zap.Strings("args", args),
		zap.Int("pid", cmd.Process.Pid))

	lineErr := readLines(stdout, onLine)
	if lineErr != nil {
		cancel()
	}
	waitErr := cmd.Wait()

	switch {
	case lineErr != nil:
		return lineErr
	case ctx.Err() != nil:
		return ctx.Err()
	case waitErr != nil:
		return fmt.Errorf("sfmc: %s exited: %w", script, waitErr)
	}
	return nil
}

func readLines(rd io.Reader, onLine func([]byte) error) error {
	br := bufio.NewReaderSize(rd, 64*1024)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) != 0 {
			if cbErr := onLine(line); cbErr != nil {
				return cbErr
			}
		}
		if err != nil {
			// EOF or a closed pipe both mean the script is gone.
			return nil
		}
	}
}

// UpdateWaypointPlan uploads a goto file for glider.
func (r *Runner) UpdateWaypointPlan(ctx context.Context, glider, filename string) error {
	return r.Run(ctx, ScriptUpdatePlan, glider, filename)
}

// DeployGotoFile tells SFMC to send the uploaded goto file to the glider.
func (r *Runner) DeployGotoFile(ctx context.Context, glider string) error {
	return r.Run(ctx, ScriptDeployGoto, glider)
}

// DialogStream follows the glider's dialog through the API.
func (r *Runner) DialogStream(ctx context.Context, glider string, onLine func([]byte) error) error {
	return r.Stream(ctx, ScriptDialogData, []string{glider}, onLine)
}

// ScriptEvents follows the glider's script state changes.
func (r *Runner) ScriptEvents(ctx context.Context, glider string, onLine func([]byte) error) error {
	return r.Stream(ctx, ScriptEvents, []string{glider}, onLine)
}
