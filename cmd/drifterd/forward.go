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

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glidertools/drifterfollow/internal/config"
	"github.com/glidertools/drifterfollow/internal/forward"
	"github.com/glidertools/drifterfollow/internal/logger"
)

// forwardCmd relays connections byte for byte to another listener.
// forwardCmd 将连接逐字节转发到另一个监听端。
var forwardCmd = &cobra.Command{
	Use:   "forward",
	Short: "Relay DirectIP connections to another host / 转发 DirectIP 连接",
	Args:  cobra.NoArgs,
	RunE:  runForward,
}

// sendCmd transmits a file the way a DirectIP sender would.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a packet file to a listener / 向监听端发送数据包文件",
	Args:  cobra.NoArgs,
	RunE:  runSend,
}

func init() {
	fs := forwardCmd.Flags()
	logger.AddFlags(fs)
	fs.Int("port", 0, "Port to listen on")
	fs.String("hostname", "", "Host to forward to")
	fs.Int("portForward", 0, "Port to forward to")
	fs.Int("maxConnections", config.DefaultMaxConnections, "Maximum simultaneous connections")

	fs = sendCmd.Flags()
	logger.AddFlags(fs)
	fs.String("input", "", "File to send")
	fs.String("host", "localhost", "Host to send to")
	fs.Int("port", 0, "Port to send to")
	fs.Float64("preDelay", 0, "Seconds to wait after connecting")
	fs.Float64("postDelay", 0, "Seconds to wait after sending")
}

func runForward(cmd *cobra.Command, _ []string) error {
	var opts config.ProxyOptions
	if err := loadOptions(cmd, &opts); err != nil {
		return err
	}
	log := logger.New("forward", opts.Options)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signalContext(log)
	defer cancel()

	proxy := forward.NewProxy(opts.ForwardTarget.Address(), opts.MaxConnections, log)
	notifyReady(log)
	err := proxy.ListenAndServe(ctx, fmt.Sprintf(":%d", opts.Port))
	log.Info("Stopped", zap.Error(err))
	return err
}

func runSend(cmd *cobra.Command, _ []string) error {
	var opts config.SendOptions
	if err := loadOptions(cmd, &opts); err != nil {
		return err
	}
	log := logger.New("send", opts.Options)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signalContext(log)
	defer cancel()

	return forward.SendFile(ctx, opts.Input, forward.SendOptions{
		Host:      opts.Host,
		Port:      opts.Port,
		PreDelay:  seconds(opts.PreDelay),
		PostDelay: seconds(opts.PostDelay),
	}, log)
}
