package config

import (
	"crypto/rand"
	"encoding/hex"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// Config is the full server configuration, loaded from a TOML file with
// ROPDS_-prefixed environment overrides (e.g. ROPDS_SERVER__PORT).
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Library  LibraryConfig  `koanf:"library"`
	Database DatabaseConfig `koanf:"database"`
	OPDS     OPDSConfig     `koanf:"opds"`
	Scanner  ScannerConfig  `koanf:"scanner"`
	Web      WebConfig      `koanf:"web"`
	Upload   UploadConfig   `koanf:"upload"`
}

type ServerConfig struct {
	Host            string `koanf:"host" default:"0.0.0.0"`
	Port            int    `koanf:"port" default:"8081" validate:"gt=0,lte=65535"`
	LogLevel        string `koanf:"log_level" default:"info"`
	SessionSecret   string `koanf:"session_secret"`
	SessionTTLHours int    `koanf:"session_ttl_hours" default:"24" validate:"gt=0"`
}

type LibraryConfig struct {
	RootPath       string   `koanf:"root_path" validate:"required"`
	CoversPath     string   `koanf:"covers_path" default:"covers"`
	BookExtensions []string `koanf:"book_extensions"`
	ScanZip        bool     `koanf:"scan_zip" default:"true"`
	ZipCodepage    string   `koanf:"zip_codepage" default:"cp866"`
	InpxEnable     bool     `koanf:"inpx_enable"`
}

type DatabaseConfig struct {
	URL string `koanf:"url" default:"sqlite://ropds.db"`
}

type OPDSConfig struct {
	Title        string `koanf:"title" default:"ROPDS"`
	Subtitle     string `koanf:"subtitle"`
	MaxItems     int    `koanf:"max_items" default:"30" validate:"gt=0"`
	SplitItems   int    `koanf:"split_items" default:"300" validate:"gt=0"`
	AuthRequired bool   `koanf:"auth_required" default:"true"`
	ShowCovers   bool   `koanf:"show_covers" default:"true"`
	AlphabetMenu bool   `koanf:"alphabet_menu" default:"true"`
	HideDoubles  bool   `koanf:"hide_doubles"`
}

type ScannerConfig struct {
	ScheduleMinutes   []int `koanf:"schedule_minutes" validate:"dive,gte=0,lte=59"`
	ScheduleHours     []int `koanf:"schedule_hours" validate:"dive,gte=0,lte=23"`
	ScheduleDayOfWeek []int `koanf:"schedule_day_of_week" validate:"dive,gte=1,lte=7"`
	DeleteLogical     bool  `koanf:"delete_logical" default:"true"`
	SkipUnchanged     bool  `koanf:"skip_unchanged"`
	TestZip           bool  `koanf:"test_zip"`
	TestFiles         bool  `koanf:"test_files"`
	WorkersNum        int   `koanf:"workers_num" default:"1" validate:"gt=0"`
}

type WebConfig struct {
	Language       string `koanf:"language" default:"en"`
	Theme          string `koanf:"theme" default:"light"`
	ReadHistoryMax int    `koanf:"read_history_max" default:"50" validate:"gt=0"`
}

type UploadConfig struct {
	AllowUpload     bool   `koanf:"allow_upload"`
	UploadPath      string `koanf:"upload_path"`
	MaxUploadSizeMB int    `koanf:"max_upload_size_mb" default:"100" validate:"gt=0"`
}

const envPrefix = "ROPDS_"

// Load reads the TOML config at path, applies defaults, environment
// overrides, and validates the result. A missing file is an error only when
// the path was explicitly provided somewhere other than the default.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		var pathErr *fs.PathError
		if !errors.As(err, &pathErr) {
			return nil, errors.Wrapf(err, "invalid config file %s", path)
		}
		// Missing file: run on defaults plus env overrides.
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// ROPDS_SERVER__PORT -> server.port
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}
	applySliceDefaults(cfg)

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	if cfg.Server.SessionSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.Server.SessionSecret = secret
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applySliceDefaults fills slice fields that the defaults tag can't express.
func applySliceDefaults(cfg *Config) {
	if cfg.Library.BookExtensions == nil {
		cfg.Library.BookExtensions = []string{"fb2", "epub", "mobi", "pdf", "djvu", "doc", "docx", "zip"}
	}
	if cfg.Scanner.ScheduleMinutes == nil {
		cfg.Scanner.ScheduleMinutes = []int{0}
	}
	if cfg.Scanner.ScheduleHours == nil {
		cfg.Scanner.ScheduleHours = []int{0, 12}
	}
}

func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.Errorf("config validation failed on %s (%s)", verrs[0].Namespace(), verrs[0].Tag())
		}
		return errors.WithStack(err)
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.WithStack(err)
	}
	return hex.EncodeToString(buf), nil
}

// CoversDir resolves the covers directory. A relative value is anchored at
// the library root.
func (cfg *Config) CoversDir() string {
	dir := cfg.Library.CoversPath
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cfg.Library.RootPath, dir)
	}
	return dir
}

// BookExtensionSet returns the configured extensions as a lowercase set.
func (cfg *Config) BookExtensionSet() map[string]bool {
	set := make(map[string]bool, len(cfg.Library.BookExtensions))
	for _, ext := range cfg.Library.BookExtensions {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return set
}
