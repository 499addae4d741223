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

package resource

import (
	"runtime/pprof"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testTrackObject struct {
	token *Token
}

type testUntrackedObject struct {
	other *Token
}

func count(obj any) int {
	if p := pprof.Lookup(profileName(obj)); p != nil {
		return p.Count()
	}

	return 0
}

func TestTrack(t *testing.T) {
	obj := &testTrackObject{token: NewToken()}

	Track(obj, obj.token)
	assert.Equal(t, 1, count(obj))

	Untrack(obj, obj.token)
	assert.Equal(t, 0, count(obj))

	assert.NotPanics(t, func() { Untrack(obj, obj.token) }, "second Untrack")
}

func TestCheckArgs(t *testing.T) {
	t.Parallel()

	obj := &testTrackObject{token: NewToken()}

	assert.Panics(t, func() { Track(obj, nil) })
	assert.Panics(t, func() { Track(obj, NewToken()) }, "foreign token")

	other := &testUntrackedObject{other: NewToken()}
	assert.Panics(t, func() { Track(other, other.other) }, "no token field")

	var nilObj *testTrackObject
	assert.Panics(t, func() { Track(nilObj, NewToken()) })
}
