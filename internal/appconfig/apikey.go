package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xeipuuv/gojsonschema"
)

// ErrMissingAPIKey is returned when neither the key file nor the environment provide an API key.
var ErrMissingAPIKey = errors.New("no OpenAI API key found")

// APIKeyEnv is consulted when the key file does not exist.
const APIKeyEnv = "OPENAI_API_KEY"

const apiKeySchema = `{
  "type": "object",
  "properties": {
    "apiKey": { "type": "string", "minLength": 1 }
  },
  "required": ["apiKey"]
}`

type keyFile struct {
	APIKey string `json:"apiKey"`
}

// LoadAPIKey reads {"apiKey": "..."} from path. When the file is absent it loads an optional
// .env file and falls back to OPENAI_API_KEY.
func LoadAPIKey(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultKeyFile
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		return parseKeyFile(path, raw)
	case errors.Is(err, os.ErrNotExist):
	default:
		return "", fmt.Errorf("read key file %q: %w", path, err)
	}

	// .env is optional; a missing file is not an error here.
	_ = godotenv.Load()
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: %s does not exist and %s is unset", ErrMissingAPIKey, path, APIKeyEnv)
}

func parseKeyFile(path string, raw []byte) (string, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(apiKeySchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return "", fmt.Errorf("parse key file %q: %w", path, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return "", fmt.Errorf("invalid key file %q: %s", path, strings.Join(problems, "; "))
	}

	var parsed keyFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse key file %q: %w", path, err)
	}
	key := strings.TrimSpace(parsed.APIKey)
	if key == "" {
		return "", fmt.Errorf("%w: %s has a blank apiKey", ErrMissingAPIKey, path)
	}
	return key, nil
}
