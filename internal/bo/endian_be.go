// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build s390x || ppc64 || mips || mips64

package bo

// Little reports a little-endian machine on common big-endian Go ports.
func Little() bool { return false }
