// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !unix

package stream

// Descriptor streams are unix-only; without one, a reactor must be
// installed explicitly via SetReactor.
func newDefaultReactor() (Reactor, error) {
	return nil, ErrInvalidArgument
}
