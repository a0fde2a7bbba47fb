package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// configFileName is the default, optional project-local config file name.
const configFileName = "fortsort.json"

// Config holds every option the CLI exposes. Size-valued fields are kept
// as their raw configured strings; parseSize resolves them once, after
// config-file/CLI-flag merge is complete, since resolving "%" requires a
// live memory probe that should only run once.
type Config struct {
	MemSize       string `json:"mem_size,omitempty"`       //nolint:tagliatelle
	Parallel      int    `json:"parallel,omitempty"`       //nolint:tagliatelle
	MaxRunWriters int64  `json:"max_run_writers,omitempty"` //nolint:tagliatelle
	// MaxRunIO is a pointer, like Compress, because 0 is a meaningful,
	// distinct setting (0 disables the cap) rather than "unset" — a
	// plain int64 can't tell an explicit 0 apart from one nobody set.
	MaxRunIO   *int64 `json:"max_run_io,omitempty"`  //nolint:tagliatelle
	TmpDir     string `json:"tmp_dir,omitempty"`     //nolint:tagliatelle
	MaxElement string `json:"max_element,omitempty"` //nolint:tagliatelle
	Locale     string `json:"locale,omitempty"`
	Compress   *bool  `json:"compress,omitempty"`
	Output     string `json:"output,omitempty"`
}

// defaultConfig returns the documented defaults.
func defaultConfig() Config {
	compress := true
	maxRunIO := int64(1)

	return Config{
		MemSize:       "95%",
		Parallel:      0, // resolved to runtime.NumCPU() in Run
		MaxRunWriters: 1,
		MaxRunIO:      &maxRunIO,
		TmpDir:        os.TempDir(),
		MaxElement:    "16M",
		Locale:        "",
		Compress:      &compress,
		Output:        "",
	}
}

// mergeConfig overlays any field overlay sets onto base: defaults, then
// config file, then CLI flags.
func mergeConfig(base, overlay Config) Config {
	if overlay.MemSize != "" {
		base.MemSize = overlay.MemSize
	}

	if overlay.Parallel != 0 {
		base.Parallel = overlay.Parallel
	}

	if overlay.MaxRunWriters != 0 {
		base.MaxRunWriters = overlay.MaxRunWriters
	}

	if overlay.MaxRunIO != nil {
		base.MaxRunIO = overlay.MaxRunIO
	}

	if overlay.TmpDir != "" {
		base.TmpDir = overlay.TmpDir
	}

	if overlay.MaxElement != "" {
		base.MaxElement = overlay.MaxElement
	}

	if overlay.Locale != "" {
		base.Locale = overlay.Locale
	}

	if overlay.Compress != nil {
		base.Compress = overlay.Compress
	}

	if overlay.Output != "" {
		base.Output = overlay.Output
	}

	return base
}

// loadConfigFile reads and JSONC-decodes the config file at path. A
// missing file is not an error when mustExist is false (the default
// project-local fortsort.json is optional); an explicitly-requested
// --config path must exist.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled, same trust level as the CLI flags that named it
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", errConfigFileRead, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: invalid JSONC: %w", errConfigInvalid, path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

// resolveConfig loads the optional project config file (or the explicit
// --config path) and layers it over the documented defaults. CLI flag
// overrides are applied by the caller afterward, via mergeConfig.
func resolveConfig(workDir, configPath string) (Config, error) {
	cfg := defaultConfig()

	var (
		fileCfg   Config
		loaded    bool
		err       error
		mustExist bool
		path      string
	)

	if configPath != "" {
		path = configPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		mustExist = true
	} else {
		path = filepath.Join(workDir, configFileName)
	}

	fileCfg, loaded, err = loadConfigFile(path, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = mergeConfig(cfg, fileCfg)
	}

	return cfg, nil
}
