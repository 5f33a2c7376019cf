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
	"math"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/serpmillers/m4c/base/log"
	"github.com/serpmillers/m4c/dataset"
	"github.com/serpmillers/m4c/model"
	"go.uber.org/zap"
)

// SearchResult is the best trial found by ModelSearch.
type SearchResult struct {
	Params model.Params
	Score  Score
	Trials int
}

// ModelSearch tunes hyper-parameters by minimizing the held-out RMSE. Parameters not sampled by a trial
// are taken from the base parameters.
type ModelSearch struct {
	ctx      context.Context
	base     model.Params
	trainSet *dataset.Dataset
	testSet  *dataset.Dataset
	config   *FitConfig
	result   SearchResult
}

func NewModelSearch(ctx context.Context, base model.Params, trainSet, testSet *dataset.Dataset, config *FitConfig) *ModelSearch {
	if config == nil {
		config = NewFitConfig().SetVerbose(0)
	}
	return &ModelSearch{
		ctx:      ctx,
		base:     base,
		trainSet: trainSet,
		testSet:  testSet,
		config:   config,
		result:   SearchResult{Score: Score{RMSE: math32.Inf(1)}},
	}
}

// SuggestParams samples the tuned hyper-parameters of a trial.
func SuggestParams(trial goptuna.Trial) model.Params {
	return model.Params{
		model.NFactors:   lo.Must(trial.SuggestStepInt(string(model.NFactors), 8, 64, 8)),
		model.Lr:         lo.Must(trial.SuggestLogFloat(string(model.Lr), 0.001, 0.1)),
		model.Reg:        lo.Must(trial.SuggestLogFloat(string(model.Reg), 1e-6, 0.1)),
		model.InitStdDev: lo.Must(trial.SuggestLogFloat(string(model.InitStdDev), 0.01, 0.5)),
	}
}

func (ms *ModelSearch) Objective(trial goptuna.Trial) (float64, error) {
	if countRecords(ms.testSet) == 0 {
		return 0, errors.Annotatef(dataset.ErrInvalidDataset, "no test set to search on")
	}
	params := ms.base.Overwrite(SuggestParams(trial))
	m := NewModel(params)
	score, err := m.Fit(ms.ctx, ms.trainSet, ms.testSet, ms.config)
	if err != nil {
		return 0, errors.Trace(err)
	}
	ms.result.Trials++
	log.Logger().Info("search mf",
		zap.Int("trial", ms.result.Trials),
		zap.Any("params", params),
		zap.Float32("rmse", score.RMSE))
	if score.RMSE < ms.result.Score.RMSE {
		ms.result.Params = params
		ms.result.Score = score
	}
	// diverged trials are ranked last
	value := float64(score.RMSE)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = math.MaxFloat32
	}
	return value, nil
}

func (ms *ModelSearch) Result() SearchResult {
	return ms.result
}

// Search runs nTrials of tree-structured Parzen estimator sampling and returns the best trial.
func Search(ctx context.Context, base model.Params, trainSet, testSet *dataset.Dataset, nTrials int, seed int64) (SearchResult, error) {
	if nTrials <= 0 {
		return SearchResult{}, errors.NotValidf("number of trials %d", nTrials)
	}
	if countRecords(testSet) == 0 {
		return SearchResult{}, errors.Annotatef(dataset.ErrInvalidDataset, "no test set to search on")
	}
	search := NewModelSearch(ctx, base, trainSet, testSet, nil)
	study, err := goptuna.CreateStudy("mf",
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMinimize),
		goptuna.StudyOptionSampler(tpe.NewSampler(tpe.SamplerOptionSeed(seed))))
	if err != nil {
		return SearchResult{}, errors.Trace(err)
	}
	if err = study.Optimize(search.Objective, nTrials); err != nil {
		return SearchResult{}, errors.Trace(err)
	}
	return search.Result(), nil
}
