// Command h2bench builds a surface mesh, compresses an interaction operator
// on it and measures the cost and accuracy of its products.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/notargets/H2Kernel/config"
)

var (
	rootCmd = &cobra.Command{
		Use:   "h2bench",
		Short: "Benchmark hierarchical compression of surface operators",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Assemble the compressed operator and time its products",
		Long: `Builds the mesh and the compressed operator from the configuration,
applies it repeatedly to a random vector and optionally compares the result
with the dense operator and renders the block partition.`,
		Args: cobra.NoArgs,
		RunE: runBench,
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE:  printConfig,
	}
)

func init() {
	for _, cmd := range []*cobra.Command{runCmd, configCmd} {
		f := cmd.Flags()
		f.String("config", "", "YAML configuration file")
		f.String("geometry", "", "square, cube or plate")
		f.Int("level", 0, "uniform refinement level of every patch")
		f.Int("degree", 0, "polynomial degree of the element basis")
		f.Float64("eta", 0, "admissibility threshold")
		f.Int("min-cluster-level", 0, "levels between elements and the finest clusters")
		f.Int("points", 0, "interpolation points per direction")
		f.String("form", "", "discontinuous, continuous or div-conforming")
		f.Int("workers", 0, "goroutines for assembly and products, 0 for all CPUs")
		f.Int("repeat", 0, "number of timed products")
		f.Bool("compare", false, "compare against the dense operator")
		f.String("plot", "", "render the block partition to this file")
		f.BoolP("verbose", "v", false, "debug logging")
	}
	rootCmd.AddCommand(runCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads --config and applies the flags that were set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	f := cmd.Flags()
	c := config.Default()
	if path, _ := f.GetString("config"); path != "" {
		var err error
		if c, err = config.Load(path); err != nil {
			return c, err
		}
	}
	if f.Changed("geometry") {
		c.Mesh.Geometry, _ = f.GetString("geometry")
	}
	if f.Changed("level") {
		c.Mesh.Level, _ = f.GetInt("level")
	}
	if f.Changed("degree") {
		c.Operator.Degree, _ = f.GetInt("degree")
	}
	if f.Changed("eta") {
		c.Operator.Eta, _ = f.GetFloat64("eta")
	}
	if f.Changed("min-cluster-level") {
		c.Operator.MinClusterLevel, _ = f.GetInt("min-cluster-level")
	}
	if f.Changed("points") {
		c.Operator.InterpolationPoints, _ = f.GetInt("points")
	}
	if f.Changed("form") {
		c.Operator.Form, _ = f.GetString("form")
	}
	if f.Changed("workers") {
		c.Run.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("repeat") {
		c.Run.Repeat, _ = f.GetInt("repeat")
	}
	if f.Changed("compare") {
		c.Run.Compare, _ = f.GetBool("compare")
	}
	if f.Changed("plot") {
		c.Run.Plot, _ = f.GetString("plot")
	}
	return c, c.Validate()
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func runBench(cmd *cobra.Command, _ []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return run(c, cmd.OutOrStdout(), newLogger(cmd))
}

func printConfig(cmd *cobra.Command, _ []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
