package misc

import (
	"os"
	"strings"
)

// GetSecret fetches a value from the environment, supporting the docker/k8s
// convention of KEY_FILE pointing at a mounted secret file whose contents are
// the actual value.
func GetSecret(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if file := os.Getenv(key + "_FILE"); file != "" {
		data, err := os.ReadFile(file)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}
