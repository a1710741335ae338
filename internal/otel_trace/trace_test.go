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

package otel_trace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"
)

func TestDisabledByDefault(t *testing.T) {
	require.NoError(t, Init(context.Background(), "test", Options{SampleRatio: 1}, zaptest.NewLogger(t)))
	assert.False(t, IsEnabled())

	ctx, span := Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	assert.NotNil(t, trace.SpanFromContext(ctx))
	End(span, errors.New("ignored"))
}

func TestSampleRatioChecked(t *testing.T) {
	err := Init(context.Background(), "test", Options{Endpoint: "localhost:4317", SampleRatio: 2}, nil)
	assert.ErrorIs(t, err, ErrSampleRatio)
	assert.False(t, IsEnabled())
}

func TestInitWithEndpoint(t *testing.T) {
	// The exporter connects lazily, so no collector is needed.
	require.NoError(t, Init(context.Background(), "test", Options{Endpoint: "127.0.0.1:4317", SampleRatio: 1}, nil))
	assert.True(t, IsEnabled())

	_, span := Start(context.Background(), "sampled")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	Shutdown(context.Background())
	assert.False(t, IsEnabled())
}
