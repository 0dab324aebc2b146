// Package config reads the settings of the h2bench tool from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/notargets/H2Kernel/h2matrix"
)

var ErrInvalid = errors.New("config: invalid settings")

// Config is the complete run description read from a YAML file.
type Config struct {
	Mesh     MeshConfig     `yaml:"mesh"`
	Operator OperatorConfig `yaml:"operator"`
	Run      RunConfig      `yaml:"run"`
}

// MeshConfig selects the geometry and its refinement.
type MeshConfig struct {
	Geometry string  `yaml:"geometry" validate:"oneof=square cube plate"`
	Level    int     `yaml:"level" validate:"gte=0,lte=10"`
	Side     float64 `yaml:"side" validate:"gt=0"`
	// plate layout in patches
	PlateX int `yaml:"plate_x" validate:"gte=1"`
	PlateY int `yaml:"plate_y" validate:"gte=1"`
}

// OperatorConfig holds the compression settings.
type OperatorConfig struct {
	Eta                 float64 `yaml:"eta" validate:"gt=0"`
	MinClusterLevel     int     `yaml:"min_cluster_level" validate:"gte=0"`
	InterpolationPoints int     `yaml:"interpolation_points" validate:"gte=1,lte=32"`
	Degree              int     `yaml:"degree" validate:"gte=0,lte=8"`
	Form                string  `yaml:"form" validate:"oneof=discontinuous continuous div-conforming"`
	QuadratureDegree    int     `yaml:"quadrature_degree" validate:"gte=0"`
	Kernel              string  `yaml:"kernel" validate:"oneof=smooth gaussian"`
	Sigma               float64 `yaml:"sigma" validate:"gt=0"`
	// CoarseLevel is the level of the piecewise constants the conforming
	// forms are prolongated from.
	CoarseLevel int `yaml:"coarse_level" validate:"gte=0"`
}

// RunConfig controls the benchmark driver.
type RunConfig struct {
	Workers int    `yaml:"workers" validate:"gte=0"`
	Repeat  int    `yaml:"repeat" validate:"gte=1"`
	Compare bool   `yaml:"compare"`
	Plot    string `yaml:"plot"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterStructValidation(levelsFit, Config{})
}

// levelsFit checks the levels that depend on the mesh depth.
func levelsFit(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.Operator.MinClusterLevel > c.Mesh.Level {
		sl.ReportError(c.Operator.MinClusterLevel, "MinClusterLevel", "min_cluster_level", "ltemesh", "")
	}
	if c.Operator.CoarseLevel > c.Mesh.Level {
		sl.ReportError(c.Operator.CoarseLevel, "CoarseLevel", "coarse_level", "ltemesh", "")
	}
}

// Default returns the configuration used before a file is applied.
func Default() Config {
	d := h2matrix.DefaultConfig()
	return Config{
		Mesh: MeshConfig{Geometry: "square", Level: 4, Side: 1, PlateX: 2, PlateY: 1},
		Operator: OperatorConfig{
			Eta:                 d.Eta,
			MinClusterLevel:     d.MinClusterLevel,
			InterpolationPoints: d.InterpolationPoints,
			Degree:              0,
			Form:                d.Form.String(),
			Kernel:              "smooth",
			Sigma:               0.5,
		},
		Run: RunConfig{Repeat: 10},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks the field tags and the level constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// H2 returns the compression parameters.
func (c Config) H2() (h2matrix.Config, error) {
	form, err := h2matrix.ParseForm(c.Operator.Form)
	if err != nil {
		return h2matrix.Config{}, err
	}
	return h2matrix.Config{
		Eta:                 c.Operator.Eta,
		MinClusterLevel:     c.Operator.MinClusterLevel,
		InterpolationPoints: c.Operator.InterpolationPoints,
		Form:                form,
		QuadratureDegree:    c.Operator.QuadratureDegree,
	}, nil
}

// Marshal encodes c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
