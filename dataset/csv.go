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
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/samber/lo"
)

const (
	UserIdColumn = "userId"
	ItemIdColumn = "movieId"
	RatingColumn = "rating"
)

// LoadCSV reads ratings from CSV with a header row. The userId, movieId and rating columns are required,
// other columns are ignored.
func LoadCSV(r io.Reader) ([]RatingRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Annotatef(ErrInvalidDataset, "missing header")
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	header = lo.Map(header, func(name string, _ int) string {
		return strings.TrimSpace(name)
	})
	columns := make(map[string]int, 3)
	for _, name := range []string{UserIdColumn, ItemIdColumn, RatingColumn} {
		index := lo.IndexOf(header, name)
		if index < 0 {
			return nil, errors.Annotatef(ErrInvalidDataset, "missing column %s", name)
		}
		columns[name] = index
	}
	width := lo.Max(lo.Values(columns)) + 1

	var records []RatingRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Annotatef(ErrInvalidDataset, "line %d: %v", line, err)
		}
		if len(row) < width {
			return nil, errors.Annotatef(ErrInvalidDataset, "line %d: expect at least %d fields but got %d", line, width, len(row))
		}
		userId, err := strconv.ParseInt(strings.TrimSpace(row[columns[UserIdColumn]]), 10, 64)
		if err != nil {
			return nil, errors.Annotatef(ErrInvalidDataset, "line %d: invalid %s", line, UserIdColumn)
		}
		itemId, err := strconv.ParseInt(strings.TrimSpace(row[columns[ItemIdColumn]]), 10, 64)
		if err != nil {
			return nil, errors.Annotatef(ErrInvalidDataset, "line %d: invalid %s", line, ItemIdColumn)
		}
		rating, err := strconv.ParseFloat(strings.TrimSpace(row[columns[RatingColumn]]), 32)
		if err != nil || math.IsNaN(rating) || math.IsInf(rating, 0) {
			return nil, errors.Annotatef(ErrInvalidDataset, "line %d: invalid %s", line, RatingColumn)
		}
		records = append(records, RatingRecord{UserId: userId, ItemId: itemId, Rating: float32(rating)})
	}
	return records, nil
}

// LoadCSVFile reads ratings from a CSV file.
func LoadCSVFile(path string) ([]RatingRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	return LoadCSV(file)
}
