package loaders

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("invalid application config")

// LoadApplicationConfig decodes the TOML file at path over cfg, so fields the
// file omits keep the values cfg already holds.
func LoadApplicationConfig(path string, cfg any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, path, strict.String())
		}
		return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, path, err)
	}
	return nil
}
