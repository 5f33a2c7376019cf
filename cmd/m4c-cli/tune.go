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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/serpmillers/m4c/config"
	"github.com/serpmillers/m4c/model/mf"
	"github.com/spf13/cobra"
)

var tuneCommand = &cobra.Command{
	Use:   "tune <ratings.csv>",
	Short: "Search hyper-parameters minimizing the held-out RMSE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if trials, _ := cmd.Flags().GetInt("trials"); trials > 0 {
			conf.Tuning.NTrials = trials
		}
		_, err := tune(cmd.Context(), conf, args[0], os.Stdout)
		return err
	},
}

func init() {
	tuneCommand.Flags().Int("trials", 0, "number of trials (overrides config)")
}

func tune(ctx context.Context, conf *config.Config, path string, out io.Writer) (mf.SearchResult, error) {
	trainSet, testSet, err := loadDataset(conf, path)
	if err != nil {
		return mf.SearchResult{}, errors.Trace(err)
	}
	result, err := mf.Search(ctx, conf.Training.Params(), trainSet, testSet, conf.Tuning.NTrials, conf.Training.RandomState)
	if err != nil {
		return mf.SearchResult{}, errors.Trace(err)
	}

	table := tablewriter.NewWriter(out)
	table.Header("Parameter", "Value")
	names := lo.Keys(result.Params)
	slices.Sort(names)
	for _, name := range names {
		if err = table.Append([]string{string(name), fmt.Sprint(result.Params[name])}); err != nil {
			return mf.SearchResult{}, errors.Trace(err)
		}
	}
	if err = table.Append([]string{"RMSE", fmt.Sprintf("%.4f", result.Score.RMSE)}); err != nil {
		return mf.SearchResult{}, errors.Trace(err)
	}
	if err = table.Append([]string{"Trials", fmt.Sprint(result.Trials)}); err != nil {
		return mf.SearchResult{}, errors.Trace(err)
	}
	return result, errors.Trace(table.Render())
}
