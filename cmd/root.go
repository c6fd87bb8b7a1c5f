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
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/notargets/mfdg/InputParameters"
	"github.com/notargets/mfdg/utils"
)

var (
	cfgFile  string
	verbose  bool
	profMode string
	logger   *zap.Logger
	profiler interface{ Stop() }
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mfdg",
	Short: "Matrix-free discontinuous Galerkin operators, solvers and benchmarks",
	Long: `
Runs the matrix-free DG engine: operator throughput benchmarks, the overset
two-domain Poisson problem and a time-dependent convection-diffusion problem.

Settings come from a YAML file (--config, default $HOME/.mfdg.yaml), from
MFDG_* environment variables (MFDG_BENCH_MAXDEGREE=5) and from flags, with
flags taking precedence.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		if err = initConfig(); err != nil {
			return
		}
		if logger, err = utils.NewLogger(verbose); err != nil {
			return
		}
		switch strings.ToLower(profMode) {
		case "":
		case "cpu":
			profiler = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
		case "mem":
			profiler = profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook)
		default:
			return fmt.Errorf("unknown profile mode %q, use cpu or mem", profMode)
		}
		return
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if profiler != nil {
			profiler.Stop()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mfdg.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug level logging")
	rootCmd.PersistentFlags().StringVar(&profMode, "profile", "", "write a cpu or mem profile to the current directory")
	rootCmd.PersistentFlags().IntP("ranks", "r", 1, "number of ranks")
	rootCmd.PersistentFlags().Int("lanes", 0, "cells per batch, 0 picks the default")
	rootCmd.PersistentFlags().Int("threads", 0, "worker threads per rank, 0 uses GOMAXPROCS")
	bindFlags(rootCmd.PersistentFlags().Lookup, map[string]string{
		"ranks":   "Ranks",
		"lanes":   "Lanes",
		"threads": "Threads",
	})
}

// initConfig reads in config file and ENV variables if set.
func initConfig() (err error) {
	viper.SetEnvPrefix("MFDG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err = viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading %s: %w", cfgFile, err)
		}
		return
	}
	var home string
	if home, err = homedir.Dir(); err != nil {
		return
	}
	viper.AddConfigPath(home)
	viper.SetConfigName(".mfdg")
	viper.SetConfigType("yaml")
	if e := viper.ReadInConfig(); e == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
	return
}

func bindFlags(lookup func(name string) *pflag.Flag, keys map[string]string) {
	for name, key := range keys {
		if err := viper.BindPFlag(key, lookup(name)); err != nil {
			panic(err)
		}
	}
}

// loadParameters layers the config file, environment and flags over the
// defaults and validates the result.
func loadParameters() (ip *InputParameters.Parameters, err error) {
	ip = InputParameters.Defaults()
	if f := viper.ConfigFileUsed(); f != "" {
		if err = ip.ReadFile(f); err != nil {
			return
		}
	}
	overlay(ip)
	if err = ip.Validate(); err != nil {
		return
	}
	if verbose {
		ip.Print()
	}
	return
}

func overlay(ip *InputParameters.Parameters) {
	setInt := func(key string, dst *int) {
		if viper.IsSet(key) {
			*dst = viper.GetInt(key)
		}
	}
	setFloat := func(key string, dst *float64) {
		if viper.IsSet(key) {
			*dst = viper.GetFloat64(key)
		}
	}
	setString := func(key string, dst *string) {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}
	setInt("Ranks", &ip.Ranks)
	setInt("Lanes", &ip.Lanes)
	setInt("Threads", &ip.Threads)

	b := &ip.Bench
	setString("Bench.Operator", &b.Operator)
	setInt("Bench.Dim", &b.Dim)
	setInt("Bench.MinDegree", &b.MinDegree)
	setInt("Bench.MaxDegree", &b.MaxDegree)
	setInt("Bench.DoFsPerRank", &b.DoFsPerRank)
	setInt("Bench.InnerRepetitions", &b.InnerRepetitions)
	setInt("Bench.OuterRepetitions", &b.OuterRepetitions)
	setFloat("Bench.MinimumWallTime", &b.MinimumWallTime)
	if viper.IsSet("Bench.CountInstructions") {
		b.CountInstructions = viper.GetBool("Bench.CountInstructions")
	}

	o := &ip.Overset
	setInt("Overset.Degree", &o.Degree)
	setInt("Overset.CellsPerDir", &o.CellsPerDir)
	setFloat("Overset.Shift", &o.Shift)
	setFloat("Overset.CouplingTolerance", &o.CouplingTolerance)
	setInt("Overset.MaxCouplingIterations", &o.MaxCouplingIterations)

	a := &ip.Advect
	setInt("Advect.Dim", &a.Dim)
	setInt("Advect.Degree", &a.Degree)
	setInt("Advect.CellsPerDir", &a.CellsPerDir)
	setFloat("Advect.Viscosity", &a.Viscosity)
	setFloat("Advect.TimeStep", &a.TimeStep)
	setFloat("Advect.FinalTime", &a.FinalTime)
	setFloat("Advect.OutputInterval", &a.OutputInterval)
	setString("Advect.Integrator", &a.Integrator)
}
