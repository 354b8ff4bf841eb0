package aurgate

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// SystemConfigFile is read first; the per-user file and AURGATE_* variables override it.
	SystemConfigFile = "/etc/aurgate.conf"

	DefaultAURURL = "https://aur.archlinux.org"
	DefaultPkgExt = ".pkg.tar.zst"

	makepkgConf = "/etc/makepkg.conf"
)

// MirrorConfig describes the optional S3-compatible bucket verified archives are copied to.
type MirrorConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether a mirror bucket is configured.
func (m MirrorConfig) Enabled() bool {
	return m.Bucket != ""
}

// Config is the immutable set of paths and settings shared by every component.
// It is built once by LoadConfig and passed around by pointer.
type Config struct {
	ConfigDir string // review checkouts live in ConfigDir/pkg
	CacheDir  string // build directories live in CacheDir/build
	DataDir   string // verified archives and the journal live here
	PkgExt    string
	AURURL    string
	Debug     bool
	Mirror    MirrorConfig
}

// Load KEY=VALUE config files and apply AURGATE_* env overrides.
// If path is empty the system file and then the per-user file are merged.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	var files []string
	if path != "" {
		files = []string{path}
	} else {
		files = []string{SystemConfigFile}
		if dir, err := os.UserConfigDir(); err == nil {
			files = append(files, filepath.Join(dir, "aurgate", "aurgate.conf"))
		}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if path != "" {
				return nil, fmt.Errorf("config file %s: %w", f, err)
			}
			continue
		}
		v.SetConfigFile(f)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", f, err)
		}
	}

	cfg := &Config{
		ConfigDir: v.GetString("AURGATE_CONFIG_DIR"),
		CacheDir:  v.GetString("AURGATE_CACHE_DIR"),
		DataDir:   v.GetString("AURGATE_DATA_DIR"),
		PkgExt:    v.GetString("AURGATE_PKGEXT"),
		AURURL:    strings.TrimRight(v.GetString("AURGATE_AUR_URL"), "/"),
		Debug:     v.GetString("AURGATE_DEBUG") == "1",
		Mirror: MirrorConfig{
			Bucket:          v.GetString("AURGATE_MIRROR_BUCKET"),
			Endpoint:        v.GetString("AURGATE_MIRROR_ENDPOINT"),
			Region:          v.GetString("AURGATE_MIRROR_REGION"),
			AccessKeyID:     v.GetString("AURGATE_MIRROR_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("AURGATE_MIRROR_SECRET_ACCESS_KEY"),
		},
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.ConfigDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("cannot determine config directory: %w", err)
		}
		c.ConfigDir = filepath.Join(dir, "aurgate")
	}
	if c.CacheDir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("cannot determine cache directory: %w", err)
		}
		c.CacheDir = filepath.Join(dir, "aurgate")
	}
	if c.DataDir == "" {
		dir, err := userDataDir()
		if err != nil {
			return err
		}
		c.DataDir = filepath.Join(dir, "aurgate")
	}
	if c.PkgExt == "" {
		c.PkgExt = readMakepkgPkgExt(makepkgConf)
	}
	if c.AURURL == "" {
		c.AURURL = DefaultAURURL
	}
	if c.Mirror.Region == "" {
		c.Mirror.Region = "auto"
	}
	return nil
}

func userDataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine data directory: %w", err)
	}
	return filepath.Join(home, ".local", "share"), nil
}

// readMakepkgPkgExt extracts PKGEXT from a makepkg.conf, falling back to DefaultPkgExt.
// Only plain assignments are understood; the file is never sourced.
func readMakepkgPkgExt(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return DefaultPkgExt
	}
	defer file.Close()

	ext := ""
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		val, ok := strings.CutPrefix(line, "PKGEXT=")
		if !ok {
			continue
		}
		if i := strings.Index(val, "#"); i >= 0 {
			val = val[:i]
		}
		ext = strings.Trim(strings.TrimSpace(val), `"'`)
	}
	if ext == "" || !strings.HasPrefix(ext, ".pkg.tar") {
		return DefaultPkgExt
	}
	return ext
}

// ReviewRoot holds one recipe checkout per pkgbase.
func (c *Config) ReviewRoot() string {
	return filepath.Join(c.ConfigDir, "pkg")
}

// ReviewDir holds the recipe checkout of pkgbase.
func (c *Config) ReviewDir(pkgbase string) string {
	return filepath.Join(c.ReviewRoot(), pkgbase)
}

// GlobalBuildDir is the directory holding every build symlink and revision directory.
func (c *Config) GlobalBuildDir() string {
	return filepath.Join(c.CacheDir, "build")
}

// BuildDir is the stable symlink path for pkgbase.
func (c *Config) BuildDir(pkgbase string) string {
	return filepath.Join(c.GlobalBuildDir(), pkgbase)
}

// CheckedTarsDir is the staging directory for the verified archives of pkgbase.
func (c *Config) CheckedTarsDir(pkgbase string) string {
	return filepath.Join(c.DataDir, "checked_tars", pkgbase)
}

// JournalPath is the bbolt database recording installed archives.
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "journal.db")
}

// Validate checks the settings that every command relies on.
func (c *Config) Validate() error {
	var errs []error
	if !strings.HasPrefix(c.PkgExt, ".") {
		errs = append(errs, fmt.Errorf("PKGEXT %q must start with a dot", c.PkgExt))
	}
	for name, dir := range map[string]string{"config": c.ConfigDir, "cache": c.CacheDir, "data": c.DataDir} {
		if !filepath.IsAbs(dir) {
			errs = append(errs, fmt.Errorf("%s directory %q is not absolute", name, dir))
		}
	}
	return errors.Join(errs...)
}
