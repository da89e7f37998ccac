package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmarlow/cookery/pkg/index"
	"github.com/jmarlow/cookery/pkg/recipe"
	"github.com/jmarlow/cookery/pkg/resolve"
)

// Environment variables passed to every build entry point.
const (
	envPkgName     = "COOKERY_PKG_NAME"
	envPkgVersion  = "COOKERY_PKG_VERSION"
	envPkgVariant  = "COOKERY_PKG_VARIANT"
	envBuildPath   = "COOKERY_BUILD_PATH"
	envInstallPath = "COOKERY_INSTALL_PATH"
	envDepPrefix   = "COOKERY_DEP_"
	envDepSuffix   = "_ROOT"
)

// buildEnv constructs the environment for one node's entry point. The
// environment is built per node from the node's own data and its build
// dependencies' install locations; nothing is set process-wide, so
// concurrent builds cannot observe each other's settings.
func buildEnv(node *resolve.Node, deps map[recipe.Identity]*index.Installation, buildDir, installDir string) []string {
	env := os.Environ()

	env = append(env,
		envPkgName+"="+node.ID.Name,
		envPkgVersion+"="+node.ID.Version,
		envPkgVariant+"="+node.ID.Variant,
		envBuildPath+"="+buildDir,
		envInstallPath+"="+installDir,
	)

	var binDirs []string
	for _, depID := range node.BuildRequires {
		inst, ok := deps[depID]
		if !ok {
			continue
		}
		env = append(env, fmt.Sprintf("%s%s%s=%s", envDepPrefix, envName(depID.Name), envDepSuffix, inst.Dir))
		if bin := filepath.Join(inst.Dir, "bin"); isDir(bin) {
			binDirs = append(binDirs, bin)
		}
	}
	if len(binDirs) > 0 {
		env = append(env, "PATH="+strings.Join(binDirs, string(os.PathListSeparator))+
			string(os.PathListSeparator)+os.Getenv("PATH"))
	}

	// recipe-declared entries win over everything above
	for _, key := range sortedKeys(node.Build.Env) {
		env = append(env, key+"="+node.Build.Env[key])
	}
	return env
}

// envName maps a package name to an environment variable fragment:
// uppercase, with every non-alphanumeric run collapsed to one underscore.
func envName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToUpper(name) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
