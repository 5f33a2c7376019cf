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
	"github.com/bits-and-blooms/bitset"
	"github.com/juju/errors"
	"github.com/serpmillers/m4c/dataset"
	"github.com/serpmillers/m4c/model"
)

const (
	// ErrIndexOutOfRange is returned when a dense index is outside the trained factors.
	ErrIndexOutOfRange = errors.ConstError("index out of range")
	// ErrModelNotLoaded is returned when scoring is requested before any model is available.
	ErrModelNotLoaded = errors.ConstError("model not loaded")
	// ErrModelFrozen is returned when a frozen model is asked to train.
	ErrModelFrozen = errors.ConstError("model is frozen")
	// ErrUnsupportedFormat is returned when a serialized model has an unknown tag or version.
	ErrUnsupportedFormat = errors.ConstError("unsupported model format")
)

// ColdStart is the user index used to rank for users unknown to the model. It scores every item with a
// zero factor row.
const ColdStart int32 = -1

// Default hyper-parameters.
var DefaultParams = model.Params{
	model.NFactors:    32,
	model.Lr:          0.01,
	model.Reg:         1e-5,
	model.NEpochs:     10,
	model.InitMean:    0,
	model.InitStdDev:  0.1,
	model.RandomState: int64(42),
	model.Shuffle:     false,
}

// Model is a latent factor rating predictor. The factor matrices are owned by Fit until Freeze is
// called. A frozen model is never mutated and is safe for concurrent readers.
type Model struct {
	model.BaseModel
	UserIndex       *dataset.IdentifierIndex
	ItemIndex       *dataset.IdentifierIndex
	UserPredictable *bitset.BitSet
	ItemPredictable *bitset.BitSet
	// Model parameters
	UserFactor [][]float32 // p_u
	ItemFactor [][]float32 // q_i
	// Hyper parameters
	nFactors   int
	nEpochs    int
	lr         float32
	reg        float32
	initMean   float32
	initStdDev float32
	shuffle    bool
	frozen     bool
}

var _ model.Model = (*Model)(nil)

// NewModel creates a model. Missing hyper-parameters fall back to DefaultParams.
func NewModel(params model.Params) *Model {
	m := new(Model)
	m.SetParams(params)
	return m
}

// SetParams sets hyper-parameters for the model.
func (m *Model) SetParams(params model.Params) {
	params = DefaultParams.Overwrite(params)
	m.BaseModel.SetParams(params)
	m.nFactors = m.Params.GetInt(model.NFactors, 32)
	m.nEpochs = m.Params.GetInt(model.NEpochs, 10)
	m.lr = m.Params.GetFloat32(model.Lr, 0.01)
	m.reg = m.Params.GetFloat32(model.Reg, 1e-5)
	m.initMean = m.Params.GetFloat32(model.InitMean, 0)
	m.initStdDev = m.Params.GetFloat32(model.InitStdDev, 0.1)
	m.shuffle = m.Params.GetBool(model.Shuffle, false)
}

// NFactors returns the width of factor rows.
func (m *Model) NFactors() int {
	return m.nFactors
}

// CountUsers returns the number of user rows.
func (m *Model) CountUsers() int32 {
	return int32(len(m.UserFactor))
}

// CountItems returns the number of item rows.
func (m *Model) CountItems() int32 {
	return int32(len(m.ItemFactor))
}

// Init allocates factors for every indexed user and item of the training set.
func (m *Model) Init(trainSet *dataset.Dataset) {
	m.ResetRandomGenerator()
	rng := m.GetRandomGenerator()
	m.UserIndex = trainSet.UserIndex
	m.ItemIndex = trainSet.ItemIndex
	nUsers, nItems := int(trainSet.CountUsers()), int(trainSet.CountItems())
	m.UserFactor = rng.NormalMatrix(nUsers, m.nFactors, m.initMean, m.initStdDev)
	m.ItemFactor = rng.NormalMatrix(nItems, m.nFactors, m.initMean, m.initStdDev)
	m.UserPredictable = bitset.New(uint(nUsers))
	m.ItemPredictable = bitset.New(uint(nItems))
	for i := 0; i < trainSet.Count(); i++ {
		m.UserPredictable.Set(uint(trainSet.UserIndices[i]))
		m.ItemPredictable.Set(uint(trainSet.ItemIndices[i]))
	}
}

// Freeze marks the model read-only. Fit fails on a frozen model.
func (m *Model) Freeze() {
	m.frozen = true
}

func (m *Model) IsFrozen() bool {
	return m.frozen
}

// IsUserPredictable returns false if the user has no training records and its factors were never updated.
func (m *Model) IsUserPredictable(userIndex int32) bool {
	if userIndex < 0 || userIndex >= m.CountUsers() {
		return false
	}
	return m.UserPredictable.Test(uint(userIndex))
}

// IsItemPredictable returns false if the item has no training records and its factors were never updated.
func (m *Model) IsItemPredictable(itemIndex int32) bool {
	if itemIndex < 0 || itemIndex >= m.CountItems() {
		return false
	}
	return m.ItemPredictable.Test(uint(itemIndex))
}

// Clear drops trained factors. A frozen model is left untouched.
func (m *Model) Clear() {
	if m.frozen {
		return
	}
	m.UserIndex = nil
	m.ItemIndex = nil
	m.UserFactor = nil
	m.ItemFactor = nil
	m.UserPredictable = nil
	m.ItemPredictable = nil
}

// Invalid returns true if the model has not been trained or loaded.
func (m *Model) Invalid() bool {
	return m == nil ||
		m.UserIndex == nil ||
		m.ItemIndex == nil ||
		m.UserFactor == nil ||
		m.ItemFactor == nil
}
