package config

import (
	stderrors "errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
)

// FileName is the configuration file looked up in the module base directory.
const FileName = "config.toml"

// Compiler backends.
const (
	CompilerAuto        = "auto"
	CompilerInterpreter = "interpreter"
)

// OptionCloseOnContextDone aborts guest execution when the caller's context
// is cancelled.
const OptionCloseOnContextDone = "close-on-context-done"

// DefaultBaseClass is the class every plugin entry class extends.
const DefaultBaseClass = "Wand.Plugin"

const wasmPageSize = 64 * 1024

// Config is the language module configuration.
type Config struct {
	Level            string   `toml:"level"`
	EnableDebugging  bool     `toml:"enable_debugging"`
	SubscribeFeature bool     `toml:"subscribe_feature"`
	MemoryLimit      string   `toml:"memory_limit"`
	Compiler         string   `toml:"compiler"`
	SafeMode         bool     `toml:"safe_mode"`
	BaseClass        string   `toml:"base_class"`
	Options          []string `toml:"options"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Level:            "info",
		SubscribeFeature: true,
		Compiler:         CompilerAuto,
		BaseClass:        DefaultBaseClass,
	}
}

// Load reads FileName from dir. A missing file yields Default.
func Load(dir string) (Config, error) {
	path := filepath.Join(dir, FileName)
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse "+path)
	}
	if err := checkKeys(path, md); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, path)
	}
	return cfg, nil
}

// Parse decodes a configuration document on top of Default.
func Parse(data string) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse config")
	}
	if err := checkKeys(FileName, md); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func checkKeys(path string, md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	return errors.New(errors.PhaseConfig, errors.KindInvalidName).
		Path(path).
		Detail("unknown keys: %s", strings.Join(keys, ", ")).Build()
}

// Validate checks every field and reports all problems together.
func (c Config) Validate() error {
	var problems errors.List
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		problems.Add(errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("level").Value(c.Level).Detail("unknown log level %q", c.Level).Build())
	}
	if c.Compiler != CompilerAuto && c.Compiler != CompilerInterpreter {
		problems.Add(errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Path("compiler").Value(c.Compiler).Detail("compiler must be %q or %q", CompilerAuto, CompilerInterpreter).Build())
	}
	if _, err := c.MemoryLimitPages(); err != nil {
		problems.Add(errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "memory_limit"))
	}
	if !strings.Contains(c.BaseClass, ".") {
		problems.Add(errors.New(errors.PhaseConfig, errors.KindInvalidName).
			Path("base_class").Value(c.BaseClass).
			Detail("base class %q is not in this format 'Namespace.Class'", c.BaseClass).Build())
	}
	for _, o := range c.Options {
		if o != OptionCloseOnContextDone {
			problems.Add(errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path("options").Value(o).Detail("unknown option %q", o).Build())
		}
	}
	return problems.Err()
}

// ZapLevel returns the configured level, info when it does not parse.
func (c Config) ZapLevel() zapcore.Level {
	l, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// MemoryLimitPages converts memory_limit into wasm pages, rounding up. An
// empty limit is 0, the runtime default.
func (c Config) MemoryLimitPages() (uint32, error) {
	if c.MemoryLimit == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(c.MemoryLimit)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.InvalidInput(errors.PhaseConfig, "memory_limit must be positive")
	}
	pages := (n + wasmPageSize - 1) / wasmPageSize
	if pages > 65536 {
		return 0, errors.InvalidInput(errors.PhaseConfig, "memory_limit exceeds 4GiB: "+units.BytesSize(float64(n)))
	}
	return uint32(pages), nil
}

// HasOption reports whether name is listed in options.
func (c Config) HasOption(name string) bool {
	return slices.Contains(c.Options, name)
}

// Engine derives the runtime configuration.
func (c Config) Engine() (*engine.Config, error) {
	pages, err := c.MemoryLimitPages()
	if err != nil {
		return nil, err
	}
	return &engine.Config{
		MemoryLimitPages:   pages,
		Debug:              c.EnableDebugging,
		Interpreter:        c.Compiler == CompilerInterpreter,
		CloseOnContextDone: c.HasOption(OptionCloseOnContextDone),
	}, nil
}
