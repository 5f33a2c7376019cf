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

package mf

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"

	"github.com/bits-and-blooms/bitset"
	"github.com/juju/errors"
	"github.com/serpmillers/m4c/base/encoding"
	"github.com/serpmillers/m4c/base/log"
	"github.com/serpmillers/m4c/dataset"
	"github.com/serpmillers/m4c/model"
	"github.com/serpmillers/m4c/storage/blob"
	"go.uber.org/zap"
)

const (
	formatMagic   = "m4c-mf"
	formatVersion = int32(1)
)

// Marshal writes the model to a byte stream. The layout is a magic tag, a format version, the
// hyper-parameters, both identifier indices, the predictable sets and the factor matrices.
func (m *Model) Marshal(w io.Writer) error {
	if m.Invalid() {
		return errors.Trace(ErrModelNotLoaded)
	}
	if _, err := w.Write([]byte(formatMagic)); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, formatVersion); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, m.Params); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, int32(m.nFactors)); err != nil {
		return errors.Trace(err)
	}
	// write indices
	if err := m.UserIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := m.ItemIndex.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	// write predictable sets
	for _, set := range []*bitset.BitSet{m.UserPredictable, m.ItemPredictable} {
		data, err := set.MarshalBinary()
		if err != nil {
			return errors.Trace(err)
		}
		if err = encoding.WriteBytes(w, data); err != nil {
			return errors.Trace(err)
		}
	}
	// write factors
	if err := encoding.WriteMatrix(w, m.UserFactor); err != nil {
		return errors.Trace(err)
	}
	return encoding.WriteMatrix(w, m.ItemFactor)
}

// Unmarshal reads a model written by Marshal. The restored model is frozen.
func (m *Model) Unmarshal(r io.Reader) error {
	magic := make([]byte, len(formatMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return errors.Annotatef(ErrUnsupportedFormat, "read magic: %v", err)
	}
	if !bytes.Equal(magic, []byte(formatMagic)) {
		return errors.Annotatef(ErrUnsupportedFormat, "unknown magic %q", magic)
	}
	var version int32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return errors.Annotatef(ErrUnsupportedFormat, "read version: %v", err)
	}
	if version != formatVersion {
		return errors.Annotatef(ErrUnsupportedFormat, "unknown version %d", version)
	}
	var params model.Params
	if err := encoding.ReadGob(r, &params); err != nil {
		return errors.Trace(err)
	}
	m.SetParams(params)
	var nFactors int32
	if err := binary.Read(r, binary.LittleEndian, &nFactors); err != nil {
		return errors.Trace(err)
	}
	if nFactors <= 0 {
		return errors.Errorf("invalid number of factors %d", nFactors)
	}
	m.nFactors = int(nFactors)
	// read indices
	m.UserIndex = dataset.NewIdentifierIndex()
	if err := m.UserIndex.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	m.ItemIndex = dataset.NewIdentifierIndex()
	if err := m.ItemIndex.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	// read predictable sets
	m.UserPredictable = &bitset.BitSet{}
	m.ItemPredictable = &bitset.BitSet{}
	for _, set := range []*bitset.BitSet{m.UserPredictable, m.ItemPredictable} {
		data, err := encoding.ReadBytes(r)
		if err != nil {
			return errors.Trace(err)
		}
		if err = set.UnmarshalBinary(data); err != nil {
			return errors.Trace(err)
		}
	}
	// read factors
	m.UserFactor = newMatrix(int(m.UserIndex.Count()), m.nFactors)
	if err := encoding.ReadMatrix(r, m.UserFactor); err != nil {
		return errors.Trace(err)
	}
	m.ItemFactor = newMatrix(int(m.ItemIndex.Count()), m.nFactors)
	if err := encoding.ReadMatrix(r, m.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	m.Freeze()
	return nil
}

func newMatrix(row, col int) [][]float32 {
	data := make([]float32, row*col)
	matrix := make([][]float32, row)
	for i := range matrix {
		matrix[i] = data[i*col : (i+1)*col]
	}
	return matrix
}

// Save writes the model to a blob store. It returns after the blob is complete. A failed write aborts
// the blob so that the previous model stays in place.
func (m *Model) Save(store blob.Store, name string) error {
	w, done, err := store.Create(name)
	if err != nil {
		return errors.Trace(err)
	}
	bw := bufio.NewWriter(w)
	if err = m.Marshal(bw); err == nil {
		err = bw.Flush()
	}
	if err != nil {
		abort(w, err)
		<-done
		return errors.Trace(err)
	}
	if err = w.Close(); err != nil {
		return errors.Trace(err)
	}
	<-done
	log.Logger().Info("save model",
		zap.String("name", name),
		zap.Int32("n_users", m.CountUsers()),
		zap.Int32("n_items", m.CountItems()))
	return nil
}

func abort(w io.WriteCloser, err error) {
	if pw, ok := w.(interface{ CloseWithError(error) error }); ok {
		_ = pw.CloseWithError(err)
	} else {
		_ = w.Close()
	}
}

// Load reads a frozen model from a blob store.
func Load(store blob.Store, name string) (*Model, error) {
	m, _, err := LoadWithDigest(store, name)
	return m, err
}

// LoadWithDigest reads a model blob and returns the model with the SHA-256 digest of the blob.
func LoadWithDigest(store blob.Store, name string) (*Model, string, error) {
	r, err := store.Open(name)
	if err != nil {
		return nil, "", errors.Trace(err)
	}
	defer r.Close()
	hash := sha256.New()
	tee := io.TeeReader(r, hash)
	m := new(Model)
	if err = m.Unmarshal(bufio.NewReader(tee)); err != nil {
		return nil, "", errors.Trace(err)
	}
	// trailing bytes are part of the blob
	if _, err = io.Copy(io.Discard, tee); err != nil {
		return nil, "", errors.Trace(err)
	}
	digest := hex.EncodeToString(hash.Sum(nil))
	log.Logger().Info("load model",
		zap.String("name", name),
		zap.String("digest", digest),
		zap.Int32("n_users", m.CountUsers()),
		zap.Int32("n_items", m.CountItems()))
	return m, digest, nil
}
