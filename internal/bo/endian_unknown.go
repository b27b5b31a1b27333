// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !amd64 && !arm64 && !386 && !riscv64 && !ppc64le && !mips64le && !mipsle && !loong64 && !wasm && !arm && !s390x && !ppc64 && !mips && !mips64

package bo

import "unsafe"

// detectLittle determines the machine's byte order once at init time.
func detectLittle() bool {
	var x uint16 = 0x0102
	b := *(*[2]byte)(unsafe.Pointer(&x))
	return b[0] == 0x02
}

var little = detectLittle()

// Little reports a little-endian machine on otherwise-unsupported ports.
func Little() bool { return little }
