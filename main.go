package main

import (
	"context"
	"fmt"
	"time"

	"github.com/meenmo/amc/amc"
	"github.com/meenmo/amc/curve"
	"github.com/meenmo/amc/instruments/bonds"
	"github.com/meenmo/amc/lgmgrid"
	"github.com/meenmo/amc/model"
)

func main() {
	today := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	b, err := bonds.FixedRate(bonds.FixedRateParams{
		Currency:     "EUR",
		IssueDate:    today,
		MaturityDate: today.AddDate(5, 0, 0),
		Frequency:    1,
		Coupon:       0.05,
		Notional:     100,
		Call:         &bonds.Schedule{First: today.AddDate(2, 0, 0), Price: 1},
	})
	if err != nil {
		panic(err)
	}

	lgm := model.LGM{Currency: "EUR", Curve: curve.FlatForward{Rate: 0.03}, Sigma: 0.01}
	m, err := model.NewCrossAsset([]model.LGM{lgm}, nil, nil, nil, nil)
	if err != nil {
		panic(err)
	}

	cfg := amc.DefaultConfig()
	cfg.GenerateAdditionalResults = true
	e, err := amc.NewEngine(today, m, amc.Market{}, cfg)
	if err != nil {
		panic(err)
	}
	res, err := e.Calculate(context.Background(), nil, b)
	if err != nil {
		panic(err)
	}

	grid, err := lgmgrid.New(today, lgm, lgmgrid.Options{})
	if err != nil {
		panic(err)
	}
	ref, err := grid.Calculate(context.Background(), b)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Underlying NPV: %.4f\n", res.UnderlyingNPV)
	fmt.Printf("Option NPV: %.4f\n", res.OptionNPV)
	fmt.Printf("NPV: %.4f (grid %.4f)\n", res.NPV, ref.NPV)
	if y, ok := res.Additional["callableBondYield"].(float64); ok {
		fmt.Printf("Callable yield: %.4f%%\n", 100*y)
	}
}
