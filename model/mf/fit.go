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
	"context"
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"github.com/serpmillers/m4c/base/log"
	"github.com/serpmillers/m4c/common/floats"
	"github.com/serpmillers/m4c/dataset"
	"go.uber.org/zap"
)

// Score is the evaluation of a model after an epoch. RMSE is NaN when no held-out set is given.
type Score struct {
	Epoch     int
	TrainRMSE float32
	RMSE      float32
}

type FitConfig struct {
	// Verbose is the period of epochs logged at info level. Other epochs are logged at debug level.
	Verbose int
	// Callback observes the score of each epoch.
	Callback func(score Score)
}

func NewFitConfig() *FitConfig {
	return &FitConfig{Verbose: 1}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetCallback(callback func(score Score)) *FitConfig {
	config.Callback = callback
	return config
}

// Fit trains factors on trainSet by stochastic gradient descent. The full number of epochs is always
// run. After each epoch the RMSE on testSet (optional) is evaluated without updating factors. The
// context is checked between epochs only.
func (m *Model) Fit(ctx context.Context, trainSet, testSet *dataset.Dataset, config *FitConfig) (Score, error) {
	if config == nil {
		config = NewFitConfig()
	}
	if m.frozen {
		return Score{}, errors.Trace(ErrModelFrozen)
	}
	if err := validateTrainSet(trainSet, testSet); err != nil {
		return Score{}, err
	}
	log.Logger().Info("fit mf",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("test_set_size", countRecords(testSet)),
		zap.Int32("n_users", trainSet.CountUsers()),
		zap.Int32("n_items", trainSet.CountItems()),
		zap.Any("params", m.GetParams()))
	m.Init(trainSet)
	// Create buffers
	userFactor := make([]float32, m.nFactors)
	grad := make([]float32, m.nFactors)
	order := make([]int32, trainSet.Count())
	for i := range order {
		order[i] = int32(i)
	}
	rng := m.GetRandomGenerator()
	score := Score{RMSE: math32.NaN()}
	for epoch := 1; epoch <= m.nEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return score, errors.Trace(err)
		}
		fitStart := time.Now()
		if m.shuffle {
			order = rng.PermInt32(trainSet.Count())
		}
		cost := float32(0)
		for _, index := range order {
			userIndex := trainSet.UserIndices[index]
			itemIndex := trainSet.ItemIndices[index]
			p, q := m.UserFactor[userIndex], m.ItemFactor[itemIndex]
			diff := trainSet.Ratings[index] - floats.Dot(p, q)
			cost += diff * diff
			// Both updates read the factors before this step
			copy(userFactor, p)
			// Update user latent factor: e*q_i - reg*p_u
			floats.MulConstTo(q, diff, grad)
			if m.reg != 0 {
				floats.MulConstAdd(userFactor, -m.reg, grad)
			}
			floats.MulConstAdd(grad, m.lr, p)
			// Update item latent factor: e*p_u - reg*q_i
			floats.MulConstTo(userFactor, diff, grad)
			if m.reg != 0 {
				floats.MulConstAdd(q, -m.reg, grad)
			}
			floats.MulConstAdd(grad, m.lr, q)
		}
		fitTime := time.Since(fitStart)
		score = Score{Epoch: epoch, RMSE: math32.NaN()}
		if len(order) > 0 {
			score.TrainRMSE = math32.Sqrt(cost / float32(len(order)))
		}
		evalStart := time.Now()
		if countRecords(testSet) > 0 {
			score.RMSE = m.Evaluate(testSet)
		}
		evalTime := time.Since(evalStart)
		fields := []zap.Field{
			zap.String("fit_time", fitTime.String()),
			zap.String("eval_time", evalTime.String()),
			zap.Float32("train_rmse", score.TrainRMSE),
			zap.Float32("rmse", score.RMSE),
		}
		if config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == m.nEpochs) {
			log.Logger().Info(fmt.Sprintf("fit mf %v/%v", epoch, m.nEpochs), fields...)
		} else {
			log.Logger().Debug(fmt.Sprintf("fit mf %v/%v", epoch, m.nEpochs), fields...)
		}
		if config.Callback != nil {
			config.Callback(score)
		}
	}
	return score, nil
}

// Evaluate returns the root mean squared error on a dataset. It does not modify factors.
func (m *Model) Evaluate(testSet *dataset.Dataset) float32 {
	if countRecords(testSet) == 0 {
		return math32.NaN()
	}
	sum := float32(0)
	for i := 0; i < testSet.Count(); i++ {
		diff := testSet.Ratings[i] - floats.Dot(m.UserFactor[testSet.UserIndices[i]], m.ItemFactor[testSet.ItemIndices[i]])
		sum += diff * diff
	}
	return math32.Sqrt(sum / float32(testSet.Count()))
}

func validateTrainSet(trainSet, testSet *dataset.Dataset) error {
	if trainSet == nil || trainSet.UserIndex == nil || trainSet.ItemIndex == nil {
		return errors.Annotatef(dataset.ErrInvalidDataset, "no train set")
	}
	if trainSet.CountUsers() == 0 {
		return errors.Annotatef(dataset.ErrInvalidDataset, "no users")
	}
	if trainSet.CountItems() == 0 {
		return errors.Annotatef(dataset.ErrInvalidDataset, "no items")
	}
	if err := checkIndices(trainSet, trainSet.CountUsers(), trainSet.CountItems()); err != nil {
		return err
	}
	if testSet != nil {
		if testSet.UserIndex != trainSet.UserIndex || testSet.ItemIndex != trainSet.ItemIndex {
			return errors.Annotatef(dataset.ErrInvalidDataset, "test set is not indexed with the train set")
		}
		if err := checkIndices(testSet, trainSet.CountUsers(), trainSet.CountItems()); err != nil {
			return err
		}
	}
	return nil
}

func checkIndices(d *dataset.Dataset, nUsers, nItems int32) error {
	if len(d.UserIndices) != len(d.Ratings) || len(d.ItemIndices) != len(d.Ratings) {
		return errors.Annotatef(dataset.ErrInvalidDataset, "columns have different lengths")
	}
	for i := range d.Ratings {
		if u := d.UserIndices[i]; u < 0 || u >= nUsers {
			return errors.Annotatef(ErrIndexOutOfRange, "record %d: user index %d not in [0, %d)", i, u, nUsers)
		}
		if v := d.ItemIndices[i]; v < 0 || v >= nItems {
			return errors.Annotatef(ErrIndexOutOfRange, "record %d: item index %d not in [0, %d)", i, v, nItems)
		}
	}
	return nil
}

func countRecords(d *dataset.Dataset) int {
	if d == nil {
		return 0
	}
	return d.Count()
}
