// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package metric

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestGridMetric(t *testing.T) {
	t.Run("With the global provider", func(t *testing.T) {
		provider := NewProvider(nil)
		require.NotNil(t, provider.Meter())
		m, err := NewGridMetric(provider.Meter())
		require.NoError(t, err)
		require.NotNil(t, m)
	})
	t.Run("With recording on a noop meter", func(t *testing.T) {
		m, err := NewGridMetric(NewProvider(noop.NewMeterProvider()).Meter())
		require.NoError(t, err)
		ctx := context.Background()
		assert.NotPanics(t, func() {
			m.Sent(ctx, "node-1")
			m.Buffered(ctx, "node-1")
			m.Disbursed(ctx, "node-1", 3)
			m.Dropped(ctx, "node-1", 1)
			m.DecodeFailed(ctx)
			m.RequestStarted(ctx)
			m.RequestEnded(ctx, true)
		})
	})
	t.Run("With a nil metric", func(t *testing.T) {
		var m *GridMetric
		ctx := context.Background()
		assert.NotPanics(t, func() {
			m.Sent(ctx, "node-1")
			m.Buffered(ctx, "node-1")
			m.Disbursed(ctx, "node-1", 3)
			m.Dropped(ctx, "node-1", 1)
			m.DecodeFailed(ctx)
			m.RequestStarted(ctx)
			m.RequestEnded(ctx, false)
		})
	})
}
