/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notargets/mfdg/bench"
)

// BenchCmd represents the bench command
var BenchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Operator throughput over a range of polynomial degrees",
	Long: `
Applies one operator repeatedly on a periodic box sized to a fixed number of
unknowns per rank and reports DoFs per second for each polynomial degree.

mfdg bench --operator ViscousTerm --dim 3 --minDegree 2 --maxDegree 8 -r 4`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ip, err := loadParameters()
		if err != nil {
			return
		}
		cfg, cellsPerDir, err := ip.BenchConfig()
		if err != nil {
			return
		}
		cfg.Logger = logger
		logger.Info("benchmark sweep", zap.Stringer("operator", cfg.Operator),
			zap.Int("dim", cfg.Dim), zap.Int("ranks", cfg.Ranks),
			zap.Int("minDegree", ip.Bench.MinDegree), zap.Int("maxDegree", ip.Bench.MaxDegree))
		results, err := bench.Sweep(cfg, ip.Bench.MinDegree, ip.Bench.MaxDegree, cellsPerDir)
		printBenchTable(cfg, results)
		return
	},
}

func init() {
	rootCmd.AddCommand(BenchCmd)
	BenchCmd.Flags().StringP("operator", "o", "", "operator to apply, one of ConvectiveTerm, ViscousTerm, ViscousAndConvectiveTerms,\n"+
		"InverseMassMatrix, InverseMassMatrixDstDst, VectorUpdate, EvaluateOperatorExplicit")
	BenchCmd.Flags().Int("dim", 3, "space dimension, 2 or 3")
	BenchCmd.Flags().Int("minDegree", 1, "lowest polynomial degree of the sweep")
	BenchCmd.Flags().Int("maxDegree", 6, "highest polynomial degree of the sweep")
	BenchCmd.Flags().Int("dofs", 200000, "target number of unknowns per rank")
	BenchCmd.Flags().Int("inner", 100, "applications averaged per measurement")
	BenchCmd.Flags().Int("outer", 1, "measurements, the fastest is reported")
	BenchCmd.Flags().Bool("instructions", false, "count retired instructions on rank 0 (linux)")
	bindFlags(BenchCmd.Flags().Lookup, map[string]string{
		"operator":     "Bench.Operator",
		"dim":          "Bench.Dim",
		"minDegree":    "Bench.MinDegree",
		"maxDegree":    "Bench.MaxDegree",
		"dofs":         "Bench.DoFsPerRank",
		"inner":        "Bench.InnerRepetitions",
		"outer":        "Bench.OuterRepetitions",
		"instructions": "Bench.CountInstructions",
	})
}

func printBenchTable(cfg bench.Config, results []bench.Result) {
	fmt.Printf("%s, dim = %d, ranks = %d\n", cfg.Operator, cfg.Dim, cfg.Ranks)
	fmt.Printf("%6s %12s %14s %14s %14s", "degree", "dofs", "time [s]", "DoFs/s", "DoFs/(s*rank)")
	if cfg.CountInstructions {
		fmt.Printf(" %14s", "instructions")
	}
	fmt.Println()
	for _, r := range results {
		fmt.Printf("%6d %12d %14.4e %14.4e %14.4e", r.Degree, r.DoFs, r.WallTime.Seconds(),
			r.DoFsPerSecond, r.DoFsPerSecondPerRank)
		if cfg.CountInstructions {
			fmt.Printf(" %14d", r.Instructions)
		}
		if r.ShortRun {
			fmt.Printf("  (short run)")
		}
		fmt.Println()
	}
}
