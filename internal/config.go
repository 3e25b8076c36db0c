package internal

import (
	"log/slog"
	"runtime"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config represents the application configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Bazel     BazelConfig     `yaml:"bazel"`
	Cache     CacheConfig     `yaml:"cache"`
	Sync      SyncConfig      `yaml:"sync"`
	Mnemonics MnemonicsConfig `yaml:"mnemonics"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Bazel.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	return c.Mnemonics.Validate()
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// BazelConfig holds everything needed to drive the external build tool.
type BazelConfig struct {
	Binary string `yaml:"binary"`
	// Aspect generates the index artifacts during the build.
	Aspect       string `yaml:"aspect"`
	OutputGroups string `yaml:"output_groups"`
	// ToolingTarget builds the aggregator used by the single-file path.
	ToolingTarget  string `yaml:"tooling_target"`
	AggregatorPath string `yaml:"aggregator_path"`
	RdepsUniverse  string `yaml:"rdeps_universe"`
	// JavaFlags pin the language/runtime versions on every build.
	JavaFlags []string `yaml:"java_flags"`
}

// Validate validates the bazel configuration.
func (c *BazelConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Binary, validation.Required),
		validation.Field(&c.Aspect, validation.Required),
		validation.Field(&c.OutputGroups, validation.Required),
		validation.Field(&c.ToolingTarget, validation.Required),
		validation.Field(&c.AggregatorPath, validation.Required),
	)
}

// CacheConfig holds the index cache layout.
type CacheConfig struct {
	// Dir is the cache directory, relative to the workspace root.
	Dir string `yaml:"dir"`
	// WorkDir receives single-file outputs before registration.
	WorkDir string `yaml:"work_dir"`
	// ReservedPrefix names long-lived shared artifacts exempt from eviction.
	ReservedPrefix string `yaml:"reserved_prefix"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.WorkDir, validation.Required),
	)
}

// SyncConfig bounds the closure computation and the worker pools.
type SyncConfig struct {
	// Depth is the default dependency graph depth.
	Depth int `yaml:"depth"`
	// Workers sizes the parallel stages; 0 means half the CPUs.
	Workers int `yaml:"workers"`
	// SupportedRules restricts queries to indexable rule kinds.
	SupportedRules []string `yaml:"supported_rules"`
	// ManifestSuffix filters manifest outputs during workspace population.
	ManifestSuffix string `yaml:"manifest_suffix"`
	// SkipPrefixes drop third-party targets from the workspace.
	SkipPrefixes []string `yaml:"skip_prefixes"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Depth, validation.Min(0)),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.SupportedRules, validation.Required),
		validation.Field(&c.ManifestSuffix, validation.Required),
	)
}

// PoolSize resolves the worker count, defaulting to half the hardware
// parallelism.
func (c *SyncConfig) PoolSize() int {
	if c.Workers > 0 {
		return c.Workers
	}
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// MnemonicsConfig names the action kinds recovered from the action graph.
type MnemonicsConfig struct {
	// Index tags index-generation actions.
	Index string `yaml:"index"`
	// Manifest tags manifest-expansion actions.
	Manifest string `yaml:"manifest"`
	// Sources tags source-list-generation actions.
	Sources string `yaml:"sources"`
}

// Validate validates the mnemonics configuration.
func (c *MnemonicsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Index, validation.Required),
		validation.Field(&c.Manifest, validation.Required),
		validation.Field(&c.Sources, validation.Required),
	)
}

// All returns the mnemonics queried from the action graph.
func (c *MnemonicsConfig) All() []string {
	return []string{c.Index, c.Manifest, c.Sources}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel: slog.LevelInfo,
		},
		Bazel: BazelConfig{
			Binary:         "bazel",
			Aspect:         "@scip_lsp//bsp_server/indexer:scip.bzl%scip_java_aspect",
			OutputGroups:   "--output_groups=scip",
			ToolingTarget:  "@scip_lsp//src/main/java/com/uber/scip/aggregator:aggregator_bin",
			AggregatorPath: "bazel-bin/src/main/java/com/uber/scip/aggregator/aggregator_bin",
			RdepsUniverse:  "//...",
			JavaFlags: []string{
				"--java_language_version=21",
				"--java_runtime_version=remotejdk_21",
				"--tool_java_language_version=21",
				"--tool_java_runtime_version=remotejdk_21",
			},
		},
		Cache: CacheConfig{
			Dir:            ".scip",
			WorkDir:        ".scip/tmp",
			ReservedPrefix: "jdk_temurin",
		},
		Sync: SyncConfig{
			Depth:          1,
			SupportedRules: []string{"java_library", "java_import", "java_test", "jvm_import"},
			ManifestSuffix: "_options",
			SkipPrefixes:   []string{"//3rdparty/", "bazel-out"},
		},
		Mnemonics: MnemonicsConfig{
			Index:    "scipMutation",
			Manifest: "TemplateExpand",
			Sources:  "scipFindUnpackedJavaSources",
		},
	}
}
