/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package materialize

import (
	"os"
	"path/filepath"
	"strings"

	"slidecraft/internal/domain"
)

// LocalSource turns an existing local file, given as a path or file:// URL,
// into a blob-backed src. Anything else is returned unchanged with a nil blob.
func LocalSource(src string) (string, *domain.Blob) {
	p := strings.TrimPrefix(src, "file://")
	if p == "" {
		return "", nil
	}
	if st, _ := domain.ClassifyURL(src); st != domain.RefExternal && !strings.HasPrefix(src, "file://") {
		return src, nil
	}
	fi, err := os.Stat(p)
	if err != nil || fi.IsDir() {
		return src, nil
	}
	h := "file:" + p
	return "blob:" + h, &domain.Blob{Handle: h, Name: filepath.Base(p), Size: fi.Size(), Path: p}
}
