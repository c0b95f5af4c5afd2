package conf

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// EnvironmentEnum deployment environment
type EnvironmentEnum int

const (
	LocalEnvironmentEnum EnvironmentEnum = iota + 1
	ProdEnvironmentEnum
	TestEnvironmentEnum
	ExampleEnvironmentEnum
)

// SystemEnvironmentEnum current environment, selected by the -env flag
var SystemEnvironmentEnum = LocalEnvironmentEnum

// ParseEnvironment maps an -env flag value to its enum
func ParseEnvironment(env string) (EnvironmentEnum, error) {
	switch env {
	case "loc":
		return LocalEnvironmentEnum, nil
	case "prod":
		return ProdEnvironmentEnum, nil
	case "test":
		return TestEnvironmentEnum, nil
	case "example":
		return ExampleEnvironmentEnum, nil
	}
	return 0, fmt.Errorf("unknown environment %q (want loc/prod/test/example)", env)
}

// GetYaml config file of the current environment
func GetYaml() string {
	switch SystemEnvironmentEnum {
	case ProdEnvironmentEnum:
		return "./conf/conf_prod.yaml"
	case TestEnvironmentEnum:
		return "./conf/conf_test.yaml"
	case ExampleEnvironmentEnum:
		return "./conf/conf_example.yaml"
	default:
		return "./conf/conf_loc.yaml"
	}
}

// LoadDotEnv loads KEY=VALUE pairs from files into the process environment.
// Missing files are skipped; existing variables win.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}
