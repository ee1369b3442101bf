package boost

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetslabs/stakingmgr/internal/lib/staking"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLoadRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boost.csv")
	csv := "validatorid,total_sts_amount,total_s_amount,weight\n" +
		"14,1250.5,3000.25,42.1234\n" +
		"3,0,500,7.5\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	records, err := LoadRecords(testLogger(), path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "14", records[0].ValidatorID)
	assert.True(t, records[0].STSBalance.Equal(dec("1250.5")))
	assert.True(t, records[0].SBalance.Equal(dec("3000.25")))
	assert.True(t, records[0].Weight.Equal(dec("42.1234")))
	assert.Equal(t, "3", records[1].ValidatorID)
}

func TestLoadRecordsSkipsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boost.csv")
	csv := "validatorid,total_sts_amount,total_s_amount,weight\n" +
		"14,not-a-number,3000,42\n" +
		"15,100\n" +
		",100,200,5\n" +
		"16,100,200,5\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	records, err := LoadRecords(testLogger(), path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "16", records[0].ValidatorID)
}

func TestLoadRecordsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boost.csv")
	require.NoError(t, os.WriteFile(path, []byte("validatorid,total_sts_amount,total_s_amount,weight\n"), 0644))

	_, err := LoadRecords(testLogger(), path)
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestLoadRecordsMissingFile(t *testing.T) {
	_, err := LoadRecords(testLogger(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestSaveRecordsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boost.csv")
	records := []staking.BoostRecord{
		{ValidatorID: "20", STSBalance: dec("10.5"), SBalance: dec("22.25"), Weight: dec("60.1")},
		{ValidatorID: "3", STSBalance: dec("1"), SBalance: dec("2"), Weight: dec("39.9")},
	}
	require.NoError(t, SaveRecords(testLogger(), path, records))

	loaded, err := LoadRecords(testLogger(), path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	// persisted in numeric id order regardless of input order
	assert.Equal(t, "3", loaded[0].ValidatorID)
	assert.Equal(t, "20", loaded[1].ValidatorID)
	assert.True(t, loaded[1].SBalance.Equal(dec("22.25")))
}

func TestSaveRecordsOverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boost.csv")
	first := []staking.BoostRecord{
		{ValidatorID: "1", STSBalance: dec("1"), SBalance: dec("1"), Weight: dec("100")},
	}
	require.NoError(t, SaveRecords(testLogger(), path, first))

	second := []staking.BoostRecord{
		{ValidatorID: "2", STSBalance: dec("5"), SBalance: dec("5"), Weight: dec("100")},
	}
	require.NoError(t, SaveRecords(testLogger(), path, second))

	loaded, err := LoadRecords(testLogger(), path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "2", loaded[0].ValidatorID)
}
