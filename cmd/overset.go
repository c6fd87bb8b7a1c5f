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

	"github.com/notargets/mfdg/comm"
	"github.com/notargets/mfdg/model_problems/Overset"
)

// OversetCmd represents the overset command
var OversetCmd = &cobra.Command{
	Use:   "overset",
	Short: "Two overlapping Poisson domains coupled through their boundaries",
	Long: `
Solves -lap(u) = f on two overlapping unit squares. Each domain takes its
Dirichlet data on the boundary inside the other domain from the other
solution, and the two solves alternate until the transferred data settles.

mfdg overset --degree 4 --cells 8 --shift 0.3`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ip, err := loadParameters()
		if err != nil {
			return
		}
		cfg := ip.OversetConfig()
		cfg.Logger = logger
		w := comm.NewWorld(ip.Ranks)
		return w.Run(func(c *comm.Comm) (err error) {
			var (
				o   *Overset.Overset
				res Overset.Result
			)
			if o, err = Overset.New(c, cfg); err != nil {
				return
			}
			if res, err = o.Run(); err != nil {
				return
			}
			if c.Rank() == 0 {
				logger.Info("overset finished", zap.Int("iterations", res.Iterations),
					zap.Float64("change", res.Change), zap.Bool("converged", res.Converged))
				fmt.Printf("%10s %10s %14s %14s %14s\n", "iterations", "converged", "change", "L2 error 0", "L2 error 1")
				fmt.Printf("%10d %10v %14.4e %14.4e %14.4e\n", res.Iterations, res.Converged, res.Change,
					res.L2Errors[0], res.L2Errors[1])
			}
			return
		})
	},
}

func init() {
	rootCmd.AddCommand(OversetCmd)
	OversetCmd.Flags().IntP("degree", "n", 3, "polynomial degree")
	OversetCmd.Flags().IntP("cells", "k", 8, "cells per direction in each domain")
	OversetCmd.Flags().Float64("shift", 0.3, "x offset of the second domain, in (0,1)")
	OversetCmd.Flags().Float64("tolerance", 1e-10, "stop when the coupling data changes less than this, 0 runs maxIterations")
	OversetCmd.Flags().Int("maxIterations", 50, "coupling iterations cap")
	bindFlags(OversetCmd.Flags().Lookup, map[string]string{
		"degree":        "Overset.Degree",
		"cells":         "Overset.CellsPerDir",
		"shift":         "Overset.Shift",
		"tolerance":     "Overset.CouplingTolerance",
		"maxIterations": "Overset.MaxCouplingIterations",
	})
}
