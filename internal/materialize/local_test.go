/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package materialize_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"slidecraft/internal/materialize"
)

func TestLocalSource(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(img, []byte("1234"), 0o644))

	src, b := materialize.LocalSource(img)
	require.Equal(t, "blob:file:"+img, src)
	require.NotNil(t, b)
	require.Equal(t, img, b.Path)
	require.Equal(t, "a.png", b.Name)
	require.EqualValues(t, 4, b.Size)

	src, b = materialize.LocalSource("file://" + img)
	require.Equal(t, "blob:file:"+img, src)
	require.NotNil(t, b)

	for _, keep := range []string{"https://cdn.example/a.png", "/api/assets/download/image-assets/x.png", "blob:abc", filepath.Join(dir, "missing.png"), dir} {
		src, b = materialize.LocalSource(keep)
		require.Equal(t, keep, src)
		require.Nil(t, b)
	}
	src, b = materialize.LocalSource("")
	require.Empty(t, src)
	require.Nil(t, b)
}
