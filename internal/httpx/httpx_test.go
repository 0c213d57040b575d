// Copyright 2024 Google LLC
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

package httpx

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_ReplaysScriptedStepsInOrder(t *testing.T) {
	c := NewFakeClient(
		ScriptedStep{StatusCode: 503},
		ScriptedStep{StatusCode: 200, Text: "ok"},
	)

	resp1, err := c.Post(context.Background(), "https://x", strings.NewReader("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, 503, resp1.StatusCode)

	resp2, err := c.Post(context.Background(), "https://x", strings.NewReader("b"), nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp2.StatusCode)
	assert.Equal(t, "ok", resp2.Text)
}

func TestFakeClient_RepeatsLastStepOnceExhausted(t *testing.T) {
	c := NewFakeClient(ScriptedStep{StatusCode: 200})

	for i := 0; i < 3; i++ {
		resp, err := c.Post(context.Background(), "https://x", strings.NewReader("a"), nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	}
	assert.Len(t, c.Calls(), 3)
}

func TestFakeClient_NoStepsReturnsExhausted(t *testing.T) {
	c := NewFakeClient()
	_, err := c.Post(context.Background(), "https://x", strings.NewReader("a"), nil)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestFakeClient_RecordsHeaders(t *testing.T) {
	c := NewFakeClient(ScriptedStep{StatusCode: 200})
	_, err := c.Post(context.Background(), "https://x", strings.NewReader("a"), map[string]string{"x-filename": "f.pcap"})
	require.NoError(t, err)
	assert.Equal(t, "f.pcap", c.Calls()[0].Headers["x-filename"])
}
