// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"io"

	"github.com/juju/errors"
	"github.com/serpmillers/m4c/base/encoding"
)

// IdentifierIndex maps external identifiers to dense indices in first-seen order.
type IdentifierIndex struct {
	si  map[int64]int32
	is  []int64
	cnt []int64
}

func NewIdentifierIndex() *IdentifierIndex {
	return &IdentifierIndex{si: map[int64]int32{}}
}

func (d *IdentifierIndex) Count() int32 {
	return int32(len(d.is))
}

// Add returns the index of id, assigning the next unused index if id is new. Every call counts one occurrence.
func (d *IdentifierIndex) Add(id int64) int32 {
	if y, ok := d.si[id]; ok {
		d.cnt[y]++
		return y
	}
	y := int32(len(d.is))
	d.si[id] = y
	d.is = append(d.is, id)
	d.cnt = append(d.cnt, 1)
	return y
}

// Id returns the index of an external id without modifying the index.
func (d *IdentifierIndex) Id(id int64) (int32, bool) {
	y, ok := d.si[id]
	return y, ok
}

// External returns the external id of an index.
func (d *IdentifierIndex) External(index int32) (int64, bool) {
	if index < 0 || int(index) >= len(d.is) {
		return 0, false
	}
	return d.is[index], true
}

// Freq returns the number of records seen for an index.
func (d *IdentifierIndex) Freq(index int32) int64 {
	if index < 0 || int(index) >= len(d.cnt) {
		return 0
	}
	return d.cnt[index]
}

func (d *IdentifierIndex) Marshal(w io.Writer) error {
	if err := encoding.WriteInt64s(w, d.is); err != nil {
		return errors.Trace(err)
	}
	return encoding.WriteInt64s(w, d.cnt)
}

func (d *IdentifierIndex) Unmarshal(r io.Reader) error {
	ids, err := encoding.ReadInt64s(r)
	if err != nil {
		return errors.Trace(err)
	}
	counts, err := encoding.ReadInt64s(r)
	if err != nil {
		return errors.Trace(err)
	}
	if len(ids) != len(counts) {
		return errors.Errorf("index has %d ids but %d counts", len(ids), len(counts))
	}
	d.si = make(map[int64]int32, len(ids))
	for i, id := range ids {
		if _, exist := d.si[id]; exist {
			return errors.Errorf("duplicate id %d in index", id)
		}
		d.si[id] = int32(i)
	}
	d.is = ids
	d.cnt = counts
	return nil
}
