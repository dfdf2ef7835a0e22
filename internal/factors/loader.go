package factors

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"folio-optimizer/internal/logger"
)

// File names follow the Ken French library downloads.
const (
	dailyFile  = "F-F_daily_3_factor.csv"
	weeklyFile = "F-F_weekly_3_factor.csv"
)

// Load reads both factor CSVs from dir. Called once at startup; the
// returned Store is the only way request handling reaches factor data.
func Load(dir string) (*Store, error) {
	daily, err := loadFile(filepath.Join(dir, dailyFile), Daily)
	if err != nil {
		return nil, err
	}
	weekly, err := loadFile(filepath.Join(dir, weeklyFile), Weekly)
	if err != nil {
		return nil, err
	}
	logger.Success("Factors", fmt.Sprintf("Loaded %d daily and %d weekly factor rows", daily.Len(), weekly.Len()))
	return NewStore(daily, weekly), nil
}

// loadFile parses one French-format CSV: a free-text preamble, a header
// row, data rows keyed by YYYYMMDD, then annual summaries and a copyright
// footer. Only rows whose first field is an 8-digit date count as data.
func loadFile(path string, cadence Cadence) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open factor file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	var rows []Row
	for {
		rec, err := r.Read()
		if err != nil {
			break // io.EOF or a malformed footer line; both end the data
		}
		if len(rec) < 5 {
			continue
		}
		date, ok := parseFrenchDate(strings.TrimSpace(rec[0]))
		if !ok {
			continue
		}
		vals := make([]float64, 4)
		bad := false
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				bad = true
				break
			}
			vals[i] = v
		}
		if bad {
			continue
		}
		rows = append(rows, Row{Date: date, MktRF: vals[0], SMB: vals[1], HML: vals[2], RF: vals[3]})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("factor file %s: no data rows", path)
	}
	return NewSet(cadence, rows), nil
}

// parseFrenchDate converts YYYYMMDD to YYYY-MM-DD.
func parseFrenchDate(s string) (string, bool) {
	if len(s) != 8 {
		return "", false
	}
	if _, err := strconv.Atoi(s); err != nil {
		return "", false
	}
	return s[:4] + "-" + s[4:6] + "-" + s[6:], true
}
