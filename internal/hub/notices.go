package hub

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadNotice reads an announcements or alerts file: YAML/JSON/TOML with a
// single `text` key. An empty path yields an empty notice.
func LoadNotice(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read notice file %s: %w", path, err)
	}
	return v.GetString("text"), nil
}
