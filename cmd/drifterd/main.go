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

// Package main is the entry point of drifterd, the drifter following toolkit.
// main 包是 drifterd（漂流浮标跟随工具集）的入口点。
//
// Every long running service of a deployment is a subcommand:
// 部署中的每个常驻服务都是一个子命令：
// - gsat-listen: receives DirectIP drifter messages / 接收 DirectIP 浮标消息
// - glider-listen: follows glider dialog and writes goto files / 跟踪滑翔机对话并生成 goto 文件
// - dialog: logs SFMC script events and dialog / 记录 SFMC 脚本事件和对话
// - faux-drifter: simulates a drifter beacon / 模拟漂流浮标
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/glidertools/drifterfollow/internal/otel_trace"
)

// Version information, set at build time
// 版本信息，在构建时设置
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// rootCmd is the root command for the drifterd CLI
// rootCmd 是 drifterd CLI 的根命令
var rootCmd = &cobra.Command{
	Use:   "drifterd",
	Short: "Glider drifter following services",
	Long: `drifterd receives drifter positions, predicts where the drifter will be
and steers a Slocum glider around it with goto files.

drifterd 接收漂流浮标位置，预测其未来位置，并通过 goto 文件引导 Slocum 滑翔机绕其航行。`,
	SilenceUsage: true,
}

// versionCmd shows version information
// versionCmd 显示版本信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information / 显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "drifterd\n")
		fmt.Fprintf(cmd.OutOrStdout(), "  Version:    %s\n", Version)
		fmt.Fprintf(cmd.OutOrStdout(), "  Git Commit: %s\n", GitCommit)
		fmt.Fprintf(cmd.OutOrStdout(), "  Build Time: %s\n", BuildTime)
		fmt.Fprintf(cmd.OutOrStdout(), "  Go Version: %s\n", runtime.Version())
		fmt.Fprintf(cmd.OutOrStdout(), "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

// configFile is the path to the configuration file
// configFile 是配置文件的路径
var configFile string

func init() {
	// Add persistent flags / 添加持久化参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: $DRIFTER_CONFIG_PATH)")
	otel_trace.AddFlags(rootCmd.PersistentFlags())

	// Add subcommands / 添加子命令
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(gsatCmd, replayCmd)
	rootCmd.AddCommand(forwardCmd, sendCmd)
	rootCmd.AddCommand(gliderCmd, gotoCmd)
	rootCmd.AddCommand(dialogCmd)
	rootCmd.AddCommand(fauxCmd)
	rootCmd.AddCommand(drifterCmd, patternsCmd, unitsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
