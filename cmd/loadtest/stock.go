package main

import (
	"context"
	"maps"
	"slices"
)

// verifyStock перечитывает засеянные товары и сравнивает остатки с тем, что
// следует из успешных вызовов. Товары с вызовами без ответа пропускаются.
func verifyStock(ctx context.Context, client warehouseClient, cfg config, col *collector) stockReport {
	expected, uncertain := col.expectedStock()

	var result stockReport
	for _, productID := range slices.Sorted(maps.Keys(expected)) {
		if uncertain[productID] {
			result.Skipped++
			continue
		}

		actual, _, err := timed(ctx, cfg.timeout, col, methodGetProduct, func(ctx context.Context) (int64, int, error) {
			return client.GetProduct(ctx, productID)
		})
		if err != nil {
			actual = -1
		}
		result.Checked++
		if actual != expected[productID] {
			result.Mismatched = append(result.Mismatched, stockDiff{
				ProductID: productID,
				Expected:  expected[productID],
				Actual:    actual,
			})
		}
	}
	return result
}
