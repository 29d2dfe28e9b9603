package steps

import (
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
)

type heartbeatConfig struct {
	Message string `mapstructure:"message"`
}

type webDigestConfig struct {
	URL          string `mapstructure:"url"`
	ItemSelector string `mapstructure:"item_selector"`
	MaxItems     int    `mapstructure:"max_items"`
	Channel      string `mapstructure:"channel"`
	Title        string `mapstructure:"title"`
}

// applyDefaults trims every string and fills blanks. The title default depends on the
// fetched page, so it is left to the publish step.
func (c *webDigestConfig) applyDefaults() {
	c.URL = strings.TrimSpace(c.URL)
	c.ItemSelector = strings.TrimSpace(c.ItemSelector)
	c.Channel = strings.TrimSpace(c.Channel)
	c.Title = strings.TrimSpace(c.Title)

	if c.ItemSelector == "" {
		c.ItemSelector = DefaultItemSelector
	}
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.MaxItems == 0 {
		c.MaxItems = DefaultMaxItems
	}
}

// decodeConfig decodes a workflow's config payload into out. Unknown keys are ignored;
// a value that cannot be coerced to its field's type is a validation error.
func decodeConfig(payload map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return &domain.ValidationError{Field: "config", Message: err.Error()}
	}

	if decodeErr := decoder.Decode(payload); decodeErr != nil {
		return &domain.ValidationError{Field: "config", Message: decodeErr.Error()}
	}
	return nil
}

func decodeWebDigestConfig(payload map[string]any) (webDigestConfig, error) {
	var cfg webDigestConfig
	if err := decodeConfig(payload, &cfg); err != nil {
		return webDigestConfig{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}
