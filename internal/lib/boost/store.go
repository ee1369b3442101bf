// Package boost maintains the per-validator boost weights derived from token
// balances held by validator-affiliated wallets.  Weights persist in a small
// CSV so the advisor keeps working across restarts and while the chain is
// unreachable.
package boost

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/beetslabs/stakingmgr/internal/lib/misc"
	"github.com/beetslabs/stakingmgr/internal/lib/staking"
)

var csvHeader = []string{"validatorid", "total_sts_amount", "total_s_amount", "weight"}

// ErrNoRecords indicates the CSV existed but contained no usable rows.
var ErrNoRecords = errors.New("boost csv contains no usable records")

// LoadRecords reads the boost weight CSV.  Malformed rows are skipped with a
// warning; only an unreadable or effectively empty file is fatal.
func LoadRecords(logger *slog.Logger, path string) ([]staking.BoostRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open boost csv:%s, error:%w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // row length validated per-row so we can skip, not abort
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to parse boost csv:%s, error:%w", path, err)
	}

	var records []staking.BoostRecord
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == csvHeader[0] {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			misc.Warnf(logger, "skipping boost csv row %d: %v", i+1, err)
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRecords, path)
	}
	return records, nil
}

func parseRow(row []string) (staking.BoostRecord, error) {
	if len(row) < 4 {
		return staking.BoostRecord{}, fmt.Errorf("expected 4 columns, got %d", len(row))
	}
	if row[0] == "" {
		return staking.BoostRecord{}, errors.New("empty validator id")
	}
	sts, err := decimal.NewFromString(row[1])
	if err != nil {
		return staking.BoostRecord{}, fmt.Errorf("bad total_sts_amount %q: %w", row[1], err)
	}
	s, err := decimal.NewFromString(row[2])
	if err != nil {
		return staking.BoostRecord{}, fmt.Errorf("bad total_s_amount %q: %w", row[2], err)
	}
	weight, err := decimal.NewFromString(row[3])
	if err != nil {
		return staking.BoostRecord{}, fmt.Errorf("bad weight %q: %w", row[3], err)
	}
	return staking.BoostRecord{
		ValidatorID: row[0],
		STSBalance:  sts,
		SBalance:    s,
		Weight:      weight,
	}, nil
}

// SaveRecords writes the boost weight CSV atomically (temp file + rename) so
// a crashed tracker run never leaves a truncated file behind.  Rows are
// written in numeric validator id order.
func SaveRecords(logger *slog.Logger, path string, records []staking.BoostRecord) error {
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b staking.BoostRecord) int {
		return staking.CompareValidatorIDs(a.ValidatorID, b.ValidatorID)
	})

	temp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	writer := csv.NewWriter(temp)
	rows := [][]string{csvHeader}
	for _, rec := range sorted {
		rows = append(rows, []string{
			rec.ValidatorID,
			rec.STSBalance.String(),
			rec.SBalance.String(),
			rec.Weight.String(),
		})
	}
	if err := writer.WriteAll(rows); err != nil {
		_ = temp.Close()
		_ = os.Remove(temp.Name())
		return fmt.Errorf("error writing boost csv: %w", err)
	}
	if err := temp.Close(); err != nil {
		return err
	}
	if err := os.Rename(temp.Name(), path); err != nil {
		return err
	}
	misc.Infof(logger, "boost weights saved, records:%d, file:%s", len(sorted), path)
	return nil
}
