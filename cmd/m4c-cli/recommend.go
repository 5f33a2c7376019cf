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
	"strings"

	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/serpmillers/m4c/catalog"
	"github.com/serpmillers/m4c/config"
	"github.com/serpmillers/m4c/logics"
	"github.com/serpmillers/m4c/model/mf"
	"github.com/serpmillers/m4c/storage/blob"
	"github.com/spf13/cobra"
)

var recommendCommand = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend movies to a user with the saved model",
	RunE: func(cmd *cobra.Command, args []string) error {
		userId, _ := cmd.Flags().GetInt64("user")
		n, _ := cmd.Flags().GetInt("n")
		genres, _ := cmd.Flags().GetString("genres")
		var filters catalog.Filters
		if genres != "" {
			filters.Genres = lo.Map(strings.Split(genres, ","), func(genre string, _ int) string {
				return strings.TrimSpace(genre)
			})
		}
		_, err := recommend(cmd.Context(), conf, userId, filters, n, os.Stdout)
		return err
	},
}

var predictCommand = &cobra.Command{
	Use:   "predict",
	Short: "Predict the rating of a movie by a user with the saved model",
	RunE: func(cmd *cobra.Command, args []string) error {
		userId, _ := cmd.Flags().GetInt64("user")
		itemId, _ := cmd.Flags().GetInt64("item")
		m, err := loadModel(conf)
		if err != nil {
			return errors.Trace(err)
		}
		score, coldStart := m.PredictExternal(userId, itemId)
		fmt.Printf("user %d, movie %d: %.4f (cold start: %v)\n", userId, itemId, score, coldStart)
		return nil
	},
}

func init() {
	recommendCommand.Flags().Int64("user", 0, "user id")
	recommendCommand.Flags().Int("n", 5, "number of movies")
	recommendCommand.Flags().String("genres", "", "comma separated genres")
	predictCommand.Flags().Int64("user", 0, "user id")
	predictCommand.Flags().Int64("item", 0, "movie id")
}

func loadModel(conf *config.Config) (*mf.Model, error) {
	store, err := blob.Open(conf.Blob)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return mf.Load(store, conf.Blob.ModelName)
}

func recommend(ctx context.Context, conf *config.Config, userId int64, filters catalog.Filters, n int, out io.Writer) ([]logics.Recommendation, error) {
	m, err := loadModel(conf)
	if err != nil {
		return nil, errors.Trace(err)
	}
	recommendations, err := logics.NewRecommender(m, catalog.Default()).Recommend(ctx, userId, filters, n)
	if err != nil {
		return nil, errors.Trace(err)
	}
	table := tablewriter.NewWriter(out)
	table.Header("Id", "Title", "Year", "Genres", "Predicted")
	for _, r := range recommendations {
		if err = table.Append([]string{
			fmt.Sprint(r.Id),
			r.Title,
			fmt.Sprint(r.Year),
			strings.Join(r.Genres, ", "),
			fmt.Sprintf("%.3f", r.PredictedRating),
		}); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return recommendations, errors.Trace(table.Render())
}
