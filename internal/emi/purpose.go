package emi

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/shopspring/decimal"
)

// DefaultRatePercent は金利表に存在しない目的に適用する年利（%）。
const DefaultRatePercent = 10.0

// purposes はローン目的の固定リスト。
var purposes = []string{
	"Personal",
	"Car",
	"Home",
	"Education",
	"Business",
	"Medical",
}

// Purposes はローン目的の一覧を返す。呼び出し側が変更しても影響しないようコピーを返す。
func Purposes() []string {
	out := make([]string, len(purposes))
	copy(out, purposes)
	return out
}

// IsPurpose はpurposeが目的リストに含まれるかを返す。
func IsPurpose(purpose string) bool {
	for _, p := range purposes {
		if p == purpose {
			return true
		}
	}
	return false
}

// RateTable はローン目的ごとの年利（%）の表。
// 現在は全目的が同一金利だが、目的別金利の拡張点として表の形を保つ。
type RateTable map[string]decimal.Decimal

// DefaultRateTable は全目的を DefaultRatePercent とする金利表を返す。
func DefaultRateTable() RateTable {
	t := make(RateTable, len(purposes))
	for _, p := range purposes {
		t[p] = decimal.NewFromFloat(DefaultRatePercent)
	}
	return t
}

// Rate はpurposeの年利を返す。表にない目的には DefaultRatePercent を返す。
func (t RateTable) Rate(purpose string) decimal.Decimal {
	if r, ok := t[purpose]; ok {
		return r
	}
	return decimal.NewFromFloat(DefaultRatePercent)
}

// rateFile は金利表YAMLファイルの形式。
//
//	rates:
//	  Home: 8.5
//	  Car: 9.25
type rateFile struct {
	Rates map[string]float64 `yaml:"rates"`
}

// LoadRateTable はYAMLファイルから金利表を読み込み、デフォルト表に上書きマージして返す。
// pathが空の場合はデフォルト表を返す。0以下の金利はエラーとする。
func LoadRateTable(path string) (RateTable, error) {
	table := DefaultRateTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate table: %w", err)
	}

	var f rateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rate table: %w", err)
	}

	for purpose, rate := range f.Rates {
		if rate <= 0 {
			return nil, fmt.Errorf("rate for %q must be positive, got %v", purpose, rate)
		}
		table[purpose] = decimal.NewFromFloat(rate)
	}

	return table, nil
}
