package misc

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvSettings loads the local overrides first so they win over the checked-in .env.
func LoadEnvSettings(logger *slog.Logger) {
	loadEnvFile(logger, ".env.local")
	loadEnvFile(logger, ".env")
}

// LoadEnvForNetwork layers network specific settings (.env.sonic, .env.blaze, ..)
// on top of whatever LoadEnvSettings already pulled in.
func LoadEnvForNetwork(logger *slog.Logger, network string) {
	loadEnvFile(logger, fmt.Sprintf(".env.%s", network))
}

func loadEnvFile(logger *slog.Logger, filename string) {
	if _, err := os.Stat(filename); err != nil {
		return
	}
	if err := godotenv.Load(filename); err != nil {
		Warnf(logger, "unable to load env file:%s, error:%v", filename, err)
		return
	}
	Debugf(logger, "loaded env file:%s", filename)
}
