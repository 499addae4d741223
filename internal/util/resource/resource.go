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

// Package resource provides utilities for tracking resource lifetimes.
//
// Objects like engines, providers, storage handles, and transactions must be explicitly closed.
// Tracked objects that are garbage collected without being untracked
// are reported by panicking in a finalizer.
// Live objects are visible as pprof profiles named "polydoc/<type>".
package resource

import (
	"fmt"
	"reflect"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/FerretDB/polydoc/internal/util/debugbuild"
)

// Token should be a field of a tracked object.
//
// It holds a creation stack (for debug builds) used in the leak message.
type Token struct {
	_     [0]func() // not comparable
	stack []byte
	s     string
}

// NewToken returns a new Token.
func NewToken() *Token {
	return &Token{
		stack: debugbuild.Stack(),
	}
}

// profilesM protects profiles creation.
var profilesM sync.Mutex

// profileName return pprof profile name for the given object.
func profileName(obj any) string {
	return "polydoc/" + reflect.TypeOf(obj).Elem().String()
}

// profile returns existing or new pprof profile for the given object.
func profile(obj any) *pprof.Profile {
	name := profileName(obj)

	if p := pprof.Lookup(name); p != nil {
		return p
	}

	profilesM.Lock()
	defer profilesM.Unlock()

	// a concurrent call might have created a profile already; check again
	if p := pprof.Lookup(name); p != nil {
		return p
	}

	return pprof.NewProfile(name)
}

// Track tracks the lifetime of an object until Untrack is called on it.
//
// Obj should be a pointer to a struct with a field "token" of type *Token.
func Track[T any](obj *T, token *Token) {
	checkArgs(obj, token)

	// use token instead of obj itself,
	// because otherwise profile will hold a reference to obj and finalizer will never run
	profile(obj).Add(token, 1)

	token.s = fmt.Sprintf("%T has not been finalized", obj)
	if token.stack != nil {
		token.s += "\nObject created by " + string(token.stack)
	}

	runtime.SetFinalizer(obj, func(obj *T) {
		panic(token.s)
	})
}

// Untrack stops tracking the lifetime of an object.
//
// It is safe to call this function multiple times.
func Untrack[T any](obj *T, token *Token) {
	checkArgs(obj, token)

	runtime.SetFinalizer(obj, nil)

	profile(obj).Remove(token)
}

// checkArgs checks Track and Untrack arguments.
func checkArgs(obj any, token *Token) {
	if token == nil {
		panic("token must not be nil")
	}

	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		panic(fmt.Sprintf("obj must be a non-nil pointer to struct, got %T", obj))
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		panic(fmt.Sprintf("obj must be a pointer to struct, got %T", obj))
	}

	f := v.FieldByName("token")
	if !f.IsValid() || f.Kind() != reflect.Pointer || f.Pointer() != reflect.ValueOf(token).Pointer() {
		panic("token must be a pointer field of a struct")
	}
}
