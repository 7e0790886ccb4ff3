package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Resolve returns the module IDs from the configuration in load order:
// providers first, then everything else, each group sorted. The gateway
// builds its router from the providers, so they must be provisioned first.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if pa, pb := isProvider(a), isProvider(b); pa != pb {
			if pa {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})
	return ids
}

func isProvider(id string) bool {
	return strings.HasPrefix(id, "provider.")
}

// EnvPath names the environment variable that overrides config discovery.
const EnvPath = "CODEPROXY_CONFIG"

// ResolvePath returns explicit when set, otherwise the first existing file in:
// $CODEPROXY_CONFIG, $XDG_CONFIG_HOME/codeproxy/codeproxy.yaml (or
// ~/.config/codeproxy/codeproxy.yaml), ./codeproxy.yaml.
func ResolvePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p, ok := os.LookupEnv(EnvPath); ok && p != "" {
		return p, nil
	}

	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "codeproxy", "codeproxy.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "codeproxy", "codeproxy.yaml"))
	}
	candidates = append(candidates, "codeproxy.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
