package cmd

import (
	"context"
	"fmt"

	"github.com/greenlightci/greenlight/census"
	"github.com/greenlightci/greenlight/server/logging"
	"github.com/pkg/errors"
)

// DatasetCmd builds the household income by state dataset the example
// workflow publishes. Responses are cached on disk so reruns don't hit
// the Census API again.
type DatasetCmd struct {
	Year     int              `default:"2013" help:"ACS3 vintage year to fetch."`
	Output   string           `type:"path" default:"data/income.json" help:"Path the dataset is written to."`
	CacheDir string           `type:"path" default:"~/.greenlight/census-cache" help:"Directory Census API responses are cached in."`
	APIKey   string           `help:"Census API key. Anonymous requests work but are rate limited."`
	LogLevel logging.LogLevel `default:"info" help:"${help_log_level}"`
}

func (cmd *DatasetCmd) Run(ctx Context) error {
	ctxLogger, err := logging.NewLoggerFromLevel(cmd.LogLevel)
	if err != nil {
		return errors.Wrap(err, "failed to build context logger")
	}
	defer ctxLogger.Close()

	client := census.NewClient(cmd.CacheDir, cmd.APIKey)
	table, err := client.IncomeByState(context.Background(), cmd.Year)
	if err != nil {
		return errors.Wrap(err, "fetching census data")
	}
	records, err := census.StateRecords(table)
	if err != nil {
		return errors.Wrap(err, "transforming census data")
	}
	if err := census.WriteDataset(records, cmd.Output); err != nil {
		return errors.Wrap(err, "writing dataset")
	}

	ctxLogger.Info(fmt.Sprintf("wrote %d state income records to %s", len(records), cmd.Output))
	return nil
}
