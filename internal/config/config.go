// Package config holds everything a run needs besides the program: the
// machine/cache model, problem-size and cache-blocking parameter bindings,
// the branch-condition probability table, and run options.
//
// A profile is a YAML document:
//
//	machine:
//	  cache_kbytes: 32
//	  types: {double: 8, int: 4}
//	  scale: {ld: 1, st: 1, ls: 1}
//	params:       {"lo(1)": "1", "hi(1)": "128"}
//	block_params: {"hi(1)": "lo(1) + 15"}
//	conditions:   {is_wall: 0.25}
//	options:      {ignore_conds: false, verbose_conds: false}
//
// LOOPMODEL_IGNORE_CONDS, LOOPMODEL_VERBOSE_CONDS and LOOPMODEL_CACHE_BYTES
// override the matching settings after the file is read.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"

	"loopmodel/internal/errs"
	"loopmodel/internal/expr"
)

// Access classes used to pick a traffic scale factor.
const (
	ClassLoad      = "ld"
	ClassStore     = "st"
	ClassLoadStore = "ls"
)

// Config is one analysis profile.
type Config struct {
	Machine     Machine            `yaml:"machine"`
	Params      map[string]string  `yaml:"params,omitempty"`
	BlockParams map[string]string  `yaml:"block_params,omitempty"`
	Conditions  map[string]float64 `yaml:"conditions,omitempty"`
	Options     Options            `yaml:"options"`
}

// Machine is the cache and word-size model.
type Machine struct {
	// CacheBytes wins over CacheKBytes when non-zero.
	CacheBytes  int64              `yaml:"cache_bytes,omitempty"`
	CacheKBytes float64            `yaml:"cache_kbytes,omitempty"`
	Types       map[string]int64   `yaml:"types"`
	Scale       map[string]float64 `yaml:"scale,omitempty"`
}

// Options are run-wide switches.
type Options struct {
	// IgnoreConds treats every branch condition as certain (probability 1).
	IgnoreConds bool `yaml:"ignore_conds"`
	// VerboseConds logs each evaluated condition chain.
	VerboseConds bool `yaml:"verbose_conds"`
}

// Default returns a profile with an 8-byte double, 4-byte int/float, unit
// scale factors and a 32 KiB cache.
func Default() *Config {
	return &Config{
		Machine: Machine{
			CacheKBytes: 32,
			Types:       map[string]int64{"double": 8, "float": 4, "int": 4},
			Scale:       map[string]float64{ClassLoad: 1, ClassStore: 1, ClassLoadStore: 1},
		},
	}
}

// Load reads and validates a profile, then applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a profile, then applies environment overrides.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal encodes the profile as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// ApplyEnv overlays LOOPMODEL_* environment variables. The env cache is
// reloaded first so variables set after process start are seen.
func (c *Config) ApplyEnv() {
	env.Load()
	if env.Has("LOOPMODEL_IGNORE_CONDS") {
		c.Options.IgnoreConds = env.Bool("LOOPMODEL_IGNORE_CONDS")
	}
	if env.Has("LOOPMODEL_VERBOSE_CONDS") {
		c.Options.VerboseConds = env.Bool("LOOPMODEL_VERBOSE_CONDS")
	}
	if s := env.Str("LOOPMODEL_CACHE_BYTES"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
			c.Machine.CacheBytes = n
			c.Machine.CacheKBytes = 0
		}
	}
}

// Validate checks ranges and fills defaults for missing scale factors.
func (c *Config) Validate() error {
	if c.Machine.CacheBytes < 0 || c.Machine.CacheKBytes < 0 {
		return errs.Configf("cache", "cache size must not be negative")
	}
	if len(c.Machine.Types) == 0 {
		return errs.Configf("types", "machine model declares no element types")
	}
	for _, name := range sortedKeys(c.Machine.Types) {
		if c.Machine.Types[name] <= 0 {
			return errs.Configf(name, "byte width of %q must be positive", name)
		}
	}
	if c.Machine.Scale == nil {
		c.Machine.Scale = make(map[string]float64, 3)
	}
	for _, class := range []string{ClassLoad, ClassStore, ClassLoadStore} {
		sf, ok := c.Machine.Scale[class]
		if !ok {
			c.Machine.Scale[class] = 1
			continue
		}
		if sf < 0 {
			return errs.Configf(class, "scale factor for %q must not be negative", class)
		}
	}
	for _, name := range sortedKeys(c.Conditions) {
		if p := c.Conditions[name]; p < 0 || p > 1 {
			return errs.Configf(name, "probability of %q is %g, want [0,1]", name, p)
		}
	}
	if _, err := c.ParamEnv(); err != nil {
		return err
	}
	if _, err := c.BlockEnv(); err != nil {
		return err
	}
	return nil
}

// CacheByteN is the cache capacity in bytes.
func (c *Config) CacheByteN() int64 {
	if c.Machine.CacheBytes > 0 {
		return c.Machine.CacheBytes
	}
	return int64(c.Machine.CacheKBytes * 1024)
}

// TypeByteN returns the byte width of an element type.
func (c *Config) TypeByteN(typ string) (int64, error) {
	n, ok := c.Machine.Types[typ]
	if !ok {
		return 0, errs.Configf(typ, "machine model has no byte width for type %q", typ)
	}
	return n, nil
}

// ScaleFactor returns the traffic scale factor of an access class.
func (c *Config) ScaleFactor(class string) float64 {
	if sf, ok := c.Machine.Scale[class]; ok {
		return sf
	}
	return 1
}

// ParamEnv builds the problem-size binding environment.
func (c *Config) ParamEnv() (*expr.Env, error) {
	env, err := expr.NewEnv(c.Params)
	if err != nil {
		return nil, errs.Configf("params", "%v", err)
	}
	return env, nil
}

// BlockEnv builds the cache-blocking binding environment layered over the
// problem-size bindings.
func (c *Config) BlockEnv() (*expr.Env, error) {
	params, err := c.ParamEnv()
	if err != nil {
		return nil, err
	}
	block, err := expr.NewEnv(c.BlockParams)
	if err != nil {
		return nil, errs.Configf("block_params", "%v", err)
	}
	return params.Overlay(block), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
