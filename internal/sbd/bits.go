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

package sbd

// BitReader reads big-endian bit fields out of a byte slice.
// BitReader 从字节切片中读取大端位字段。
type BitReader struct {
	buf []byte
}

// NewBitReader wraps buf for bit-level access.
func NewBitReader(buf []byte) *BitReader {
	return &BitReader{buf: buf}
}

// Len returns the number of bits available.
func (r *BitReader) Len() int {
	return len(r.buf) * 8
}

// Uint returns the n bits starting at bit offset, most significant bit first.
// Bits past the end of the buffer read as zero.
// Uint 返回从 offset 开始的 n 位（高位在前），越界位按 0 处理。
func (r *BitReader) Uint(offset, n int) uint64 {
	var v uint64
	for i := offset; i < offset+n; i++ {
		v <<= 1
		byteIdx := i / 8
		if byteIdx < len(r.buf) && r.buf[byteIdx]&(0x80>>(uint(i)%8)) != 0 {
			v |= 1
		}
	}
	return v
}

// Bool returns whether the single bit at offset is set.
func (r *BitReader) Bool(offset int) bool {
	return r.Uint(offset, 1) != 0
}

// BitWriter accumulates big-endian bit fields.
// BitWriter 累积大端位字段，用于构造负载。
type BitWriter struct {
	buf   []byte
	nBits int
}

// Append writes the low n bits of v. Values outside [0, 2^n-1] are clamped
// to the nearest bound.
// Append 写入 v 的低 n 位，超出 [0, 2^n-1] 的值被截断到边界。
func (w *BitWriter) Append(n int, v int64) {
	u := Clamp(n, v)
	for i := n - 1; i >= 0; i-- {
		if w.nBits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if u&(1<<uint(i)) != 0 {
			w.buf[len(w.buf)-1] |= 0x80 >> (uint(w.nBits) % 8)
		}
		w.nBits++
	}
}

// Len returns the number of bits written.
func (w *BitWriter) Len() int {
	return w.nBits
}

// Bytes returns the written bits, zero padded to a whole byte.
func (w *BitWriter) Bytes() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

// Clamp limits v to the range an n bit unsigned field can hold.
func Clamp(n int, v int64) uint64 {
	if v < 0 {
		return 0
	}
	limit := uint64(1)<<uint(n) - 1
	if uint64(v) > limit {
		return limit
	}
	return uint64(v)
}
