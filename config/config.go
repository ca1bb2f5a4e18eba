// Package config reads fit settings from YAML.
//
// Unknown keys and keys missing from the document are reported as warnings
// and never fail a load; missing keys keep their Default value. Out-of-range
// values are errors.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/rigsolve"
	"github.com/gogpu/rigsolve/rbf"
	"github.com/gogpu/rigsolve/rigid"
)

// Config holds the named weights and toggles of a fit.
type Config struct {
	// Threads is the worker count of the shared pool; 0 uses every CPU.
	Threads        int            `yaml:"threads" validate:"gte=0"`
	Rigid          Rigid          `yaml:"rigid"`
	PointPoint     PointPoint     `yaml:"point_point"`
	Collision      Collision      `yaml:"collision"`
	LipClosure     LipClosure     `yaml:"lip_closure"`
	RBF            RBF            `yaml:"rbf"`
	Regularization Regularization `yaml:"regularization"`

	// Warnings lists unknown and missing keys found while parsing.
	Warnings []string `yaml:"-"`
}

// Rigid configures rigid alignment.
type Rigid struct {
	// Free names the unlocked degrees of freedom: rx, ry, rz, tx, ty, tz.
	Free       []string `yaml:"free" validate:"dive,oneof=rx ry rz tx ty tz"`
	Iterations int      `yaml:"iterations" validate:"gte=1"`
	// Neighbours is how many closest vertices seed each closest-point search.
	Neighbours int `yaml:"neighbours" validate:"gte=1"`
}

// PointPoint weights the landmark correspondence term.
type PointPoint struct {
	Weight  float64 `yaml:"weight" validate:"gte=0"`
	Average bool    `yaml:"average"`
}

// Collision configures the collision term.
type Collision struct {
	Enabled    bool    `yaml:"enabled"`
	Weight     float64 `yaml:"weight" validate:"gte=0"`
	Neighbours int     `yaml:"neighbours" validate:"gte=1"`
	// MaxDistance bounds accepted penetration depth; 0 means unbounded.
	MaxDistance float64 `yaml:"max_distance" validate:"gte=0"`
}

// LipClosure configures the lip closure term.
type LipClosure struct {
	Enabled          bool    `yaml:"enabled"`
	Weight           float64 `yaml:"weight" validate:"gte=0"`
	ContactThreshold float64 `yaml:"contact_threshold" validate:"gte=0"`
}

// RBF configures the correspondence solver. Names are those accepted by the
// rbf Parse functions.
type RBF struct {
	Distance        string  `yaml:"distance"`
	Kernel          string  `yaml:"kernel"`
	TwistAxis       string  `yaml:"twist_axis"`
	Radius          float64 `yaml:"radius" validate:"gt=0"`
	WeightThreshold float64 `yaml:"weight_threshold" validate:"gte=0,lte=1"`
	Normalize       bool    `yaml:"normalize"`
	Solver          string  `yaml:"solver"`
}

// Regularization weights the offset smoothness term.
type Regularization struct {
	Weight float64 `yaml:"weight" validate:"gte=0"`
}

// Default returns the settings used for keys a document leaves out.
func Default() *Config {
	p := rbf.DefaultParams()
	return &Config{
		Rigid: Rigid{
			Free:       []string{"rx", "ry", "rz", "tx", "ty", "tz"},
			Iterations: 10,
			Neighbours: 8,
		},
		PointPoint: PointPoint{Weight: 1},
		Collision: Collision{
			Enabled:    true,
			Weight:     1,
			Neighbours: 8,
		},
		LipClosure: LipClosure{
			Enabled:          true,
			Weight:           1,
			ContactThreshold: 0.05,
		},
		RBF: RBF{
			Distance:        p.Distance.String(),
			Kernel:          p.Kernel.String(),
			TwistAxis:       p.TwistAxis.String(),
			Radius:          p.Radius,
			WeightThreshold: p.WeightThreshold,
			Normalize:       p.Normalize,
			Solver:          p.Solver.String(),
		},
		Regularization: Regularization{Weight: 0.01},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over Default. Warnings are collected in
// Config.Warnings and logged.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	switch {
	case root.Kind == 0:
		cfg.Warnings = append(cfg.Warnings, "empty configuration, using defaults")
	case root.Kind != yaml.MappingNode:
		return nil, fmt.Errorf("config: line %d: top level must be a mapping", root.Line)
	default:
		if err := root.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decoding: %w", err)
		}
		cfg.Warnings = checkKeys(root, reflect.TypeOf(*cfg), "", cfg.Warnings)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		rigsolve.Logger().Warn("config: " + w)
	}
	return cfg, nil
}

// Validate checks value ranges and enum names.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q (got %v)", fe.Namespace(), fe.ActualTag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.RBF.Params(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// checkKeys compares a mapping node against the yaml tags of struct type t
// and appends a warning for every unknown or missing key.
func checkKeys(node *yaml.Node, t reflect.Type, prefix string, warnings []string) []string {
	fields := make(map[string]reflect.Type)
	var order []string
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			continue
		}
		fields[name] = f.Type
		order = append(order, name)
	}

	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		ft, ok := fields[key.Value]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("line %d: unknown key %s%s", key.Line, prefix, key.Value))
			continue
		}
		seen[key.Value] = true
		if ft.Kind() == reflect.Struct && val.Kind == yaml.MappingNode {
			warnings = checkKeys(val, ft, prefix+key.Value+".", warnings)
		}
	}
	for _, name := range order {
		if !seen[name] {
			warnings = append(warnings, fmt.Sprintf("missing key %s%s, using default", prefix, name))
		}
	}
	return warnings
}

// Params converts the section to rbf.Params.
func (r RBF) Params() (rbf.Params, error) {
	p := rbf.Params{
		Radius:          r.Radius,
		WeightThreshold: r.WeightThreshold,
		Normalize:       r.Normalize,
	}
	var err error
	if p.Distance, err = rbf.ParseDistanceMethod(r.Distance); err != nil {
		return p, err
	}
	if p.Kernel, err = rbf.ParseKernelType(r.Kernel); err != nil {
		return p, err
	}
	if p.TwistAxis, err = rbf.ParseAxis(r.TwistAxis); err != nil {
		return p, err
	}
	if p.Solver, err = rbf.ParseSolverType(r.Solver); err != nil {
		return p, err
	}
	return p, p.Validate()
}

var dofIndex = map[string]int{
	"rx": rigid.RotX,
	"ry": rigid.RotY,
	"rz": rigid.RotZ,
	"tx": rigid.TransX,
	"ty": rigid.TransY,
	"tz": rigid.TransZ,
}

// FreeMask returns the rigid.SolveMasked mask of the named free dofs.
func (r Rigid) FreeMask() [6]bool {
	var free [6]bool
	for _, name := range r.Free {
		if i, ok := dofIndex[name]; ok {
			free[i] = true
		}
	}
	return free
}
