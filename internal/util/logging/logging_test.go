// Copyright 2021 FerretDB Inc.
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

package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestLogRAM(t *testing.T) {
	t.Parallel()

	entries := []*zapcore.Entry{
		{Level: zapcore.InfoLevel, Time: time.Now(), Message: "1"},
		{Level: zapcore.InfoLevel, Time: time.Now(), Message: "2"},
		{Level: zapcore.InfoLevel, Time: time.Now(), Message: "3"},
	}

	testCases := map[string]struct {
		size     int
		expected []string
	}{
		"Bigger": {
			size:     5,
			expected: []string{"1", "2", "3"},
		},
		"Exact": {
			size:     3,
			expected: []string{"1", "2", "3"},
		},
		"Smaller": {
			size:     2,
			expected: []string{"2", "3"},
		},
	}

	for name, tc := range testCases {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			l := newLogRAM(tc.size)
			for _, e := range entries {
				l.append(e)
			}

			var actual []string
			for _, e := range l.Get() {
				actual = append(actual, e.Message)
			}

			assert.Equal(t, tc.expected, actual)
		})
	}

	assert.Panics(t, func() { newLogRAM(0) })
}

func TestSetupFormat(t *testing.T) {
	t.Parallel()

	_, err := Setup(zapcore.InfoLevel, "xml", "")
	assert.EqualError(t, err, `unknown log format "xml"`)
}
