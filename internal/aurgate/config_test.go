package aurgate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv clears every AURGATE_* variable and points the XDG dirs at a temp dir.
func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	for _, key := range []string{
		"AURGATE_CONFIG_DIR", "AURGATE_CACHE_DIR", "AURGATE_DATA_DIR", "AURGATE_PKGEXT",
		"AURGATE_AUR_URL", "AURGATE_DEBUG", "AURGATE_MIRROR_BUCKET", "AURGATE_MIRROR_ENDPOINT",
		"AURGATE_MIRROR_REGION", "AURGATE_MIRROR_ACCESS_KEY_ID", "AURGATE_MIRROR_SECRET_ACCESS_KEY",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, "cache"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	return home
}

func TestLoadConfigFromFileWithEnvOverride(t *testing.T) {
	home := isolateEnv(t)
	path := filepath.Join(home, "aurgate.conf")
	writeFile(t, path, `# aurgate settings
AURGATE_CONFIG_DIR=/srv/aurgate/config
AURGATE_PKGEXT=".pkg.tar.xz"
AURGATE_AUR_URL=https://aur.example.org
AURGATE_MIRROR_BUCKET=packages
AURGATE_DEBUG=1
`)
	t.Setenv("AURGATE_AUR_URL", "https://mirror.example.org/aur/")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/aurgate/config", cfg.ConfigDir)
	assert.Equal(t, ".pkg.tar.xz", cfg.PkgExt)
	assert.Equal(t, "https://mirror.example.org/aur", cfg.AURURL)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.Mirror.Enabled())
	assert.Equal(t, "auto", cfg.Mirror.Region)
	assert.Equal(t, filepath.Join(home, "cache", "aurgate"), cfg.CacheDir)
	assert.Equal(t, filepath.Join(home, "data", "aurgate"), cfg.DataDir)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	home := isolateEnv(t)
	t.Setenv("AURGATE_PKGEXT", ".pkg.tar.zst")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "config", "aurgate"), cfg.ConfigDir)
	assert.Equal(t, DefaultAURURL, cfg.AURURL)
	assert.False(t, cfg.Debug)
	assert.False(t, cfg.Mirror.Enabled())
	assert.Equal(t, filepath.Join(home, "config", "aurgate", "pkg", "foo"), cfg.ReviewDir("foo"))
	assert.Equal(t, filepath.Join(home, "cache", "aurgate", "build", "foo"), cfg.BuildDir("foo"))
	assert.Equal(t, filepath.Join(home, "data", "aurgate", "checked_tars", "foo"), cfg.CheckedTarsDir("foo"))
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	isolateEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.conf"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{ConfigDir: "relative", CacheDir: "/c", DataDir: "/d", PkgExt: "pkg.tar.zst"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must start with a dot")
	assert.Contains(t, err.Error(), "config directory")
}

func TestReadMakepkgPkgExt(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "quoted", content: "PKGEXT='.pkg.tar.xz'\n", want: ".pkg.tar.xz"},
		{name: "last assignment wins", content: "PKGEXT='.pkg.tar.xz'\nPKGEXT=\".pkg.tar.gz\" # faster\n", want: ".pkg.tar.gz"},
		{name: "commented out", content: "#PKGEXT='.pkg.tar.xz'\n", want: DefaultPkgExt},
		{name: "not a package suffix", content: "PKGEXT='.zip'\n", want: DefaultPkgExt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "makepkg.conf")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			assert.Equal(t, tt.want, readMakepkgPkgExt(path))
		})
	}
	assert.Equal(t, DefaultPkgExt, readMakepkgPkgExt(filepath.Join(t.TempDir(), "missing")))
}
