package env

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SystemVariablePrefix marks process environment variables that are exposed
// to test files with the prefix stripped.
const SystemVariablePrefix = "APITEST_VAR_"

type Environment struct {
	Name      string
	Variables map[string]any
}

// LoadEnvironment builds the variables of environment envName. Sources are
// applied in order, later ones winning: the config file's environments
// section, dir/.env, then dir/.env.<envName>. Missing dotenv files are not
// an error.
func LoadEnvironment(dir, envName string, configEnvs map[string]map[string]any) (*Environment, error) {
	env := &Environment{
		Name:      envName,
		Variables: make(map[string]any),
	}

	if vars, ok := configEnvs[envName]; ok {
		for k, v := range vars {
			env.Variables[k] = v
		}
	}

	files := []string{".env"}
	if envName != "" {
		files = append(files, ".env."+envName)
	}
	for _, name := range files {
		vars, err := LoadDotEnv(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for k, v := range vars {
			env.Variables[k] = v
		}
	}

	return env, nil
}

func MergeVariables(sources ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}

func LoadSystemEnv(prefix string) map[string]any {
	result := make(map[string]any)
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if prefix == "" {
			result[key] = value
		} else if len(key) > len(prefix) && strings.HasPrefix(key, prefix) {
			result[key[len(prefix):]] = value
		}
	}
	return result
}
