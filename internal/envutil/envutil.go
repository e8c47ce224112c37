package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the runtime environment of the appbridge host process.
const EnvVar = "APPBRIDGE_ENV"

// IsDev checks if we're running in development mode, where plain-http auth
// services and self-signed setups are tolerated.
func IsDev() bool {
	env := strings.ToLower(os.Getenv(EnvVar))
	return env == "development" || env == "dev"
}
