package misc

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

//go:embed config.example.yaml
var configTemplate []byte

// ConfigTemplate returns the annotated example configuration.
func ConfigTemplate() []byte {
	return append([]byte(nil), configTemplate...)
}

// WriteConfigTemplate writes the example configuration to dst. An existing file is left
// untouched unless overwrite is set.
func WriteConfigTemplate(dst string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return fmt.Errorf("config file %s already exists", dst)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := out.Close(); errClose != nil {
			log.WithError(errClose).Warn("failed to close destination config file")
		}
	}()

	if _, err = out.Write(configTemplate); err != nil {
		return err
	}
	return out.Sync()
}
