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

package gotofile

import (
	"context"
	"sync"

	"github.com/glidertools/drifterfollow/internal/observability"
	"github.com/glidertools/drifterfollow/internal/queue"
	"go.uber.org/zap"
)

type delivery struct {
	glider string
	text   string
}

// Dispatcher fans each goto file out to its sinks. Every sink has its own
// queue and worker so a slow SMTP server never holds up the API upload.
// Dispatcher 将 goto 文件分发给各个 sink，每个 sink 拥有独立的队列与工作协程。
type Dispatcher struct {
	sinks   []Sink
	queues  []*queue.Queue[delivery]
	metrics *observability.Collector
	logger  *zap.Logger
	once    sync.Once
}

// NewDispatcher creates a Dispatcher. Start must be called before deliveries
// are processed.
func NewDispatcher(sinks []Sink, metrics *observability.Collector, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	d := &Dispatcher{sinks: sinks, metrics: metrics, logger: logger}
	for range sinks {
		d.queues = append(d.queues, queue.New[delivery]())
	}
	return d
}

// Sinks returns the names of the configured sinks.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Start launches one worker per sink. The workers stop with ctx.
func (d *Dispatcher) Start(ctx context.Context) {
	d.once.Do(func() {
		for i, s := range d.sinks {
			sink, q := s, d.queues[i]
			log := d.logger.With(zap.String("sink", sink.Name()))
			log.Info("Starting")
			go q.Run(ctx, func(ctx context.Context, item delivery) {
				err := sink.Deliver(ctx, item.glider, item.text)
				d.metrics.Delivered(sink.Name(), err)
				if err != nil {
					log.Error("goto delivery failed", zap.String("glider", item.glider), zap.Error(err))
					return
				}
				log.Debug("goto delivered", zap.String("glider", item.glider))
			})
		}
	})
}

// Put queues text for every sink.
func (d *Dispatcher) Put(glider, text string) {
	for i, q := range d.queues {
		if err := q.Put(delivery{glider: glider, text: text}); err != nil {
			d.logger.Warn("goto dropped", zap.String("sink", d.sinks[i].Name()), zap.Error(err))
		}
	}
}

// WaitToFinish blocks until every queued delivery has been attempted.
func (d *Dispatcher) WaitToFinish() {
	for _, q := range d.queues {
		q.Wait()
	}
}
