// Package configpaths resolves where btkvm looks for its configuration,
// settings and state files.
package configpaths

import (
	"errors"
	"os"
	"path/filepath"
)

const (
	appDir    = "btkvm"
	systemDir = "/etc/btkvm"
)

// DefaultConfigDir returns $XDG_CONFIG_HOME/btkvm or ~/.config/btkvm.
// Running as root without HOME falls back to /etc/btkvm.
func DefaultConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir), nil
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", appDir), nil
	}
	if os.Geteuid() == 0 {
		return systemDir, nil
	}
	return "", errors.New("HOME not set")
}

// DefaultFile returns the path of name inside the default config dir.
func DefaultFile(name string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// DefaultNamedConfigPath returns the default config file path for the given format and base name (e.g., "server").
func DefaultNamedConfigPath(baseName, format string) (string, error) {
	ext := "json"
	switch format {
	case "yaml", "yml":
		ext = "yaml"
	case "toml":
		ext = "toml"
	}
	return DefaultFile(baseName + "." + ext)
}

// EnsureDir ensures the directory for a given file path exists.
func EnsureDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0o755)
}

// ConfigCandidatePaths builds candidate paths for config files per format.
// If userPath is provided, it is prioritized and routed to the matching loader by extension.
func ConfigCandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	add := func(dir, base string) {
		jsonPaths = append(jsonPaths, filepath.Join(dir, base+".json"))
		yamlPaths = append(yamlPaths, filepath.Join(dir, base+".yaml"), filepath.Join(dir, base+".yml"))
		tomlPaths = append(tomlPaths, filepath.Join(dir, base+".toml"))
	}

	if userPath != "" {
		switch filepath.Ext(userPath) {
		case ".yaml", ".yml":
			yamlPaths = append(yamlPaths, userPath)
		case ".toml":
			tomlPaths = append(tomlPaths, userPath)
		default:
			jsonPaths = append(jsonPaths, userPath)
		}
	}

	if wd, err := os.Getwd(); err == nil {
		for _, base := range []string{appDir, "config", "server"} {
			add(wd, base)
		}
	}

	if dir, err := DefaultConfigDir(); err == nil && dir != systemDir {
		for _, base := range []string{"config", "server"} {
			add(dir, base)
		}
	}

	for _, base := range []string{"config", "server"} {
		add(systemDir, base)
	}
	return
}
