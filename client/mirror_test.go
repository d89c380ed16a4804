/*
   Copyright The containerd Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package client

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMirrorWordDefaultsToRelaxed(t *testing.T) {
	var mw MirrorWord
	assert.Equal(t, ModeRelaxed, mw.Load())
}

func TestMirrorWordStoreLoad(t *testing.T) {
	var mw MirrorWord
	mw.Store(ModePrimary)
	assert.Equal(t, ModePrimary, mw.Load())
	mw.Store(ModeRelaxed)
	assert.Equal(t, ModeRelaxed, mw.Load())
}

func TestMirrorWordConcurrentAccess(t *testing.T) {
	var mw MirrorWord
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				mw.Store(ModePrimary)
			} else {
				mw.Store(ModeRelaxed)
			}
			_ = mw.Load()
		}(i)
	}
	wg.Wait()
}
