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

package dialog

import "strings"

// Assembler splits streamed text into lines. Text after the last newline is
// held until more arrives or Flush is called.
// Assembler 将流式文本切分为行，最后一个换行之后的文本保留至下次输入或 Flush。
type Assembler struct {
	buf string
}

// Feed appends chunk and returns every complete line, newline included.
func (a *Assembler) Feed(chunk string) []string {
	a.buf += chunk
	var lines []string
	for {
		i := strings.IndexByte(a.buf, '\n')
		if i < 0 {
			return lines
		}
		lines = append(lines, a.buf[:i+1])
		a.buf = a.buf[i+1:]
	}
}

// Flush returns the held partial line, if any.
func (a *Assembler) Flush() (string, bool) {
	if a.buf == "" {
		return "", false
	}
	line := a.buf
	a.buf = ""
	return line, true
}

// Pending reports the number of held bytes.
func (a *Assembler) Pending() int {
	return len(a.buf)
}
