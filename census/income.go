package census

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// IncomeGroups is the group order records sort by within a state. It
// matches the published dataset, which puts 75000 to 99999 before
// 50000 to 74999.
var IncomeGroups = []string{
	"<10000",
	"10000 to 14999",
	"15000 to 24999",
	"25000 to 34999",
	"35000 to 49999",
	"75000 to 99999",
	"50000 to 74999",
	"100000 to 149999",
	"150000 to 199999",
	"200000+",
}

// totalVariable counts all households of a state.
const totalVariable = "B19001_001E"

// incomeVariables maps B19001 variables onto the reported income groups.
// Groups the table splits across brackets sum multiple variables.
var incomeVariables = []struct {
	group string
	vars  []string
}{
	{group: "<10000", vars: []string{"B19001_002E"}},
	{group: "10000 to 14999", vars: []string{"B19001_003E"}},
	{group: "15000 to 24999", vars: []string{"B19001_004E", "B19001_005E"}},
	{group: "25000 to 34999", vars: []string{"B19001_006E", "B19001_007E"}},
	{group: "35000 to 49999", vars: []string{"B19001_008E", "B19001_009E", "B19001_010E"}},
	{group: "50000 to 74999", vars: []string{"B19001_011E", "B19001_012E"}},
	{group: "75000 to 99999", vars: []string{"B19001_013E"}},
	{group: "100000 to 149999", vars: []string{"B19001_014E", "B19001_015E"}},
	{group: "150000 to 199999", vars: []string{"B19001_016E"}},
	{group: "200000+", vars: []string{"B19001_017E"}},
}

// stateRegions keys census regions by state FIPS code. States missing
// here are skipped.
var stateRegions = map[string]string{
	"01": "south",
	"02": "west",
	"04": "west",
	"05": "south",
	"06": "west",
	"08": "west",
	"09": "northeast",
	"10": "south",
	"11": "south",
	"12": "south",
	"13": "south",
	"15": "west",
	"16": "west",
	"17": "midwest",
	"18": "midwest",
	"19": "midwest",
	"20": "midwest",
	"21": "south",
	"22": "south",
	"23": "northeast",
	"24": "south",
	"25": "northeast",
	"26": "midwest",
	"27": "midwest",
	"28": "south",
	"29": "midwest",
	"30": "west",
	"31": "midwest",
	"32": "west",
	"33": "northeast",
	"34": "northeast",
	"35": "west",
	"36": "northeast",
	"37": "south",
	"38": "midwest",
	"39": "midwest",
	"40": "south",
	"41": "west",
	"42": "northeast",
	"44": "northeast",
	"45": "south",
	"46": "midwest",
	"47": "south",
	"48": "south",
	"49": "west",
	"50": "northeast",
	"51": "south",
	"53": "west",
	"54": "south",
	"55": "midwest",
	"56": "west",
	"72": "other",
}

// StateIncome is one state and income group combination of the dataset.
// Field order matches the published records.
type StateIncome struct {
	Name   string  `json:"name"`
	Region string  `json:"region"`
	ID     int     `json:"id"`
	Pct    float64 `json:"pct"`
	Total  int     `json:"total"`
	Group  string  `json:"group"`
}

// StateRecords flattens the table into one record per state and income
// group, sorted by state id and group order.
func StateRecords(table *Table) ([]StateIncome, error) {
	records := []StateIncome{}
	for _, row := range table.Rows {
		if len(row) != len(table.Header) {
			return nil, errors.Errorf("row has %d cells, header has %d", len(row), len(table.Header))
		}
		cells := make(map[string]string, len(row))
		for i, name := range table.Header {
			cells[name] = row[i]
		}

		region, ok := stateRegions[cells["state"]]
		if !ok {
			continue
		}
		id, err := strconv.Atoi(cells["state"])
		if err != nil {
			return nil, errors.Wrapf(err, "parsing state fips %q", cells["state"])
		}
		total, err := strconv.Atoi(cells[totalVariable])
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s for %s", totalVariable, cells["NAME"])
		}

		for _, iv := range incomeVariables {
			count := 0
			for _, v := range iv.vars {
				n, err := strconv.Atoi(cells[v])
				if err != nil {
					return nil, errors.Wrapf(err, "parsing %s for %s", v, cells["NAME"])
				}
				count += n
			}
			records = append(records, StateIncome{
				Name:   cells["NAME"],
				Region: region,
				ID:     id,
				Pct:    round3(float64(count) / float64(total)),
				Total:  total,
				Group:  iv.group,
			})
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].ID != records[j].ID {
			return records[i].ID < records[j].ID
		}
		return groupOrder(records[i].Group) < groupOrder(records[j].Group)
	})
	return records, nil
}

func groupOrder(group string) int {
	for i, g := range IncomeGroups {
		if g == group {
			return i
		}
	}
	return len(IncomeGroups)
}

// round3 rounds to three decimals, ties to even.
func round3(x float64) float64 {
	return math.RoundToEven(x*1000) / 1000
}

// WriteDataset writes records as indented JSON to path, creating parent
// directories. Group labels like "<10000" stay unescaped.
func WriteDataset(records []StateIncome, path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return errors.Wrap(err, "marshaling dataset")
	}
	// Encode appends a newline the dataset file doesn't carry.
	data := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}
	return os.WriteFile(path, data, 0644)
}
