// Package ledger stores transactions as JSON arrays partitioned into one file
// per (year, month).
package ledger

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	shardPrefix = "ledger_"
	shardExt    = ".json"
)

// ShardKey identifies one month of transactions. The zero value is the
// sentinel shard that holds records whose date could not be parsed.
type ShardKey struct {
	Year  int
	Month int
}

// Sentinel is the shard for unparseable dates.
var Sentinel = ShardKey{}

func (k ShardKey) IsSentinel() bool { return k == Sentinel }

func (k ShardKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
}

// Resolve maps a "YYYY-MM-DD" date onto its shard. Only the year and month
// digits are inspected. Anything that does not yield a positive year and a
// month in 1..12 resolves to Sentinel.
func Resolve(date string) ShardKey {
	if len(date) < 7 || date[4] != '-' {
		return Sentinel
	}
	year, ok := atoiDigits(date[0:4])
	if !ok || year <= 0 {
		return Sentinel
	}
	month, ok := atoiDigits(date[5:7])
	if !ok || month < 1 || month > 12 {
		return Sentinel
	}
	return ShardKey{Year: year, Month: month}
}

func atoiDigits(s string) (int, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Resolver builds shard paths below a data directory:
//
//	<root>/ledger_2024/ledger_2024-03.json
type Resolver struct {
	root string
}

func NewResolver(root string) Resolver {
	return Resolver{root: root}
}

func (r Resolver) Root() string { return r.root }

// YearDir returns the directory holding every shard of year.
func (r Resolver) YearDir(year int) string {
	return filepath.Join(r.root, fmt.Sprintf("%s%04d", shardPrefix, year))
}

// Path returns the shard file for key. Distinct keys map to distinct paths.
func (r Resolver) Path(key ShardKey) string {
	name := fmt.Sprintf("%s%04d-%02d%s", shardPrefix, key.Year, key.Month, shardExt)
	return filepath.Join(r.YearDir(key.Year), name)
}

// parseShardFile is the inverse of Path. It accepts the sentinel shard and
// rejects files whose year disagrees with their directory.
func parseShardFile(path string) (ShardKey, bool) {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, shardPrefix) || !strings.HasSuffix(name, shardExt) {
		return ShardKey{}, false
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(name, shardPrefix), shardExt)
	if len(stem) != 7 || stem[4] != '-' {
		return ShardKey{}, false
	}
	year, ok := atoiDigits(stem[0:4])
	if !ok {
		return ShardKey{}, false
	}
	month, ok := atoiDigits(stem[5:7])
	if !ok {
		return ShardKey{}, false
	}

	key := ShardKey{Year: year, Month: month}
	if !key.IsSentinel() && (year <= 0 || month < 1 || month > 12) {
		return ShardKey{}, false
	}

	dirYear, ok := parseYearDir(filepath.Base(filepath.Dir(path)))
	if !ok || dirYear != year {
		return ShardKey{}, false
	}
	return key, true
}

func parseYearDir(name string) (int, bool) {
	if !strings.HasPrefix(name, shardPrefix) {
		return 0, false
	}
	digits := strings.TrimPrefix(name, shardPrefix)
	if len(digits) != 4 {
		return 0, false
	}
	return atoiDigits(digits)
}
