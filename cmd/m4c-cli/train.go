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

	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/schollz/progressbar/v3"
	"github.com/serpmillers/m4c/base/log"
	"github.com/serpmillers/m4c/config"
	"github.com/serpmillers/m4c/dataset"
	"github.com/serpmillers/m4c/model/mf"
	"github.com/serpmillers/m4c/storage/blob"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var trainCommand = &cobra.Command{
	Use:   "train <ratings.csv>",
	Short: "Train a model on ratings and save it to the blob store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if epochs, _ := cmd.Flags().GetInt("epochs"); epochs > 0 {
			conf.Training.NEpochs = epochs
		}
		if cmd.Flags().Changed("test-size") {
			conf.Training.TestSize, _ = cmd.Flags().GetFloat32("test-size")
		}
		_, err := train(cmd.Context(), conf, args[0], os.Stdout)
		return err
	},
}

func init() {
	trainCommand.Flags().Int("epochs", 0, "number of epochs (overrides config)")
	trainCommand.Flags().Float32("test-size", 0, "ratio of ratings held out (overrides config)")
}

// loadDataset reads ratings and splits them by the training config.
func loadDataset(conf *config.Config, path string) (*dataset.Dataset, *dataset.Dataset, error) {
	records, err := dataset.LoadCSVFile(path)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	d, err := dataset.NewDataset(records)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	log.Logger().Info("load dataset",
		zap.String("path", path),
		zap.Int("n_ratings", d.Count()),
		zap.Int32("n_users", d.CountUsers()),
		zap.Int32("n_items", d.CountItems()))
	return d.Split(conf.Training.TestSize, conf.Training.RandomState)
}

func train(ctx context.Context, conf *config.Config, path string, out io.Writer) (*mf.Model, error) {
	trainSet, testSet, err := loadDataset(conf, path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	m := mf.NewModel(conf.Training.Params())
	bar := progressbar.NewOptions(conf.Training.NEpochs,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Training"),
		progressbar.OptionShowCount())
	var scores []mf.Score
	if _, err = m.Fit(ctx, trainSet, testSet, mf.NewFitConfig().SetVerbose(0).SetCallback(func(score mf.Score) {
		scores = append(scores, score)
		_ = bar.Add(1)
	})); err != nil {
		return nil, errors.Trace(err)
	}
	_ = bar.Finish()
	fmt.Fprintln(out)

	table := tablewriter.NewWriter(out)
	table.Header("Epoch", "Train RMSE", "Test RMSE")
	for _, score := range scores {
		if err = table.Append([]string{
			fmt.Sprint(score.Epoch),
			fmt.Sprintf("%.4f", score.TrainRMSE),
			fmt.Sprintf("%.4f", score.RMSE),
		}); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if err = table.Render(); err != nil {
		return nil, errors.Trace(err)
	}

	store, err := blob.Open(conf.Blob)
	if err != nil {
		return nil, errors.Trace(err)
	}
	m.Freeze()
	if err = m.Save(store, conf.Blob.ModelName); err != nil {
		return nil, errors.Trace(err)
	}
	fmt.Fprintf(out, "Model saved to %s/%s\n", conf.Blob.URI, conf.Blob.ModelName)
	return m, nil
}
