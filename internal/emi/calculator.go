// Package emi はローンの毎月均等返済額（EMI）の計算を提供する。
// 申請入力のライブプレビュー用であり、入力検証は行わない。
package emi

import (
	"math"

	"github.com/shopspring/decimal"
)

// QuoteInput はEMI計算の入力。
type QuoteInput struct {
	Principal         decimal.Decimal // 元本
	AnnualRatePercent decimal.Decimal // 年利（%）。10なら10%
	TermMonths        int             // 返済月数
}

// QuoteResult はEMI計算の結果。入力から常に再計算され、単独では保存しない。
type QuoteResult struct {
	MonthlyInstallment decimal.Decimal `json:"monthlyInstallment"`
	TotalPayable       decimal.Decimal `json:"totalPayable"`
	TotalInterest      decimal.Decimal `json:"totalInterest"`
}

// Calculate は月複利の元利均等返済額を返す。
// 元本・年利・月数のいずれかが0以下の場合は0を返す（エラーにはしない）。
// 結果は小数点以下2桁に四捨五入（0から遠い方向）する。
func Calculate(principal, annualRatePercent decimal.Decimal, termMonths int) decimal.Decimal {
	if !principal.IsPositive() || !annualRatePercent.IsPositive() || termMonths <= 0 {
		return decimal.Zero
	}

	p := principal.InexactFloat64()
	r := annualRatePercent.InexactFloat64() / (12 * 100)
	growth := math.Pow(1+r, float64(termMonths))

	// r > 0 かつ N > 0 なら growth-1 は正
	payment := p * r * growth / (growth - 1)

	return decimal.NewFromFloat(payment).Round(2)
}

// Quote はEMIと派生値（総支払額、総利息）を計算する。
// 無効な入力では全項目0を返す。
func Quote(in QuoteInput) QuoteResult {
	installment := Calculate(in.Principal, in.AnnualRatePercent, in.TermMonths)
	if installment.IsZero() {
		return QuoteResult{
			MonthlyInstallment: decimal.Zero,
			TotalPayable:       decimal.Zero,
			TotalInterest:      decimal.Zero,
		}
	}

	total := installment.Mul(decimal.NewFromInt(int64(in.TermMonths)))
	return QuoteResult{
		MonthlyInstallment: installment,
		TotalPayable:       total,
		TotalInterest:      total.Sub(in.Principal),
	}
}
