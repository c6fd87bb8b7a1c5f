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

	"github.com/notargets/mfdg/comm"
	"github.com/notargets/mfdg/model_problems/Advection"
)

// AdvectCmd represents the advect command
var AdvectCmd = &cobra.Command{
	Use:   "advect",
	Short: "Convection-diffusion of a sine wave on the periodic box",
	Long: `
Integrates u_t + b.grad(u) = nu lap(u) with an explicit Runge-Kutta method and
reports the L2 error against the translated and decayed exact solution.

mfdg advect --dim 2 --degree 4 --integrator SSPRK3 --finalTime 1`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ip, err := loadParameters()
		if err != nil {
			return
		}
		cfg := ip.AdvectConfig()
		cfg.Logger = logger
		w := comm.NewWorld(ip.Ranks)
		return w.Run(func(c *comm.Comm) (err error) {
			var (
				a   *Advection.Advection
				res Advection.Result
			)
			if a, err = Advection.New(c, cfg); err != nil {
				return
			}
			if res, err = a.Run(); err != nil {
				return
			}
			if c.Rank() == 0 {
				fmt.Printf("%12s %14s %14s\n", "time", "L2 error", "relative")
				for _, s := range res.Samples {
					fmt.Printf("%12.5f %14.4e %14.4e\n", s.Time, s.L2, s.RelativeL2)
				}
				fmt.Printf("%d steps, final L2 error %.4e\n", res.Steps, res.L2Error)
			}
			return
		})
	},
}

func init() {
	rootCmd.AddCommand(AdvectCmd)
	AdvectCmd.Flags().Int("dim", 2, "space dimension, 2 or 3")
	AdvectCmd.Flags().IntP("degree", "n", 3, "polynomial degree")
	AdvectCmd.Flags().IntP("cells", "k", 8, "cells per direction")
	AdvectCmd.Flags().Float64("viscosity", 0.01, "diffusion coefficient")
	AdvectCmd.Flags().Float64("dt", 5e-4, "time step")
	AdvectCmd.Flags().Float64("finalTime", 0.5, "end time")
	AdvectCmd.Flags().Float64("outputInterval", 0.1, "time between error samples, 0 samples every step")
	AdvectCmd.Flags().String("integrator", "RK4", "Runge-Kutta method: ForwardEuler, Heun2, SSPRK3, RK4")
	bindFlags(AdvectCmd.Flags().Lookup, map[string]string{
		"dim":            "Advect.Dim",
		"degree":         "Advect.Degree",
		"cells":          "Advect.CellsPerDir",
		"viscosity":      "Advect.Viscosity",
		"dt":             "Advect.TimeStep",
		"finalTime":      "Advect.FinalTime",
		"outputInterval": "Advect.OutputInterval",
		"integrator":     "Advect.Integrator",
	})
}
