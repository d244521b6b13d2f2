package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeOptions decodes entry.Options into out, which must be a pointer to a
// struct tagged with `mapstructure`. Scalars are converted leniently ("5" into
// an int, "30s" into a time.Duration) and unknown keys are rejected.
func DecodeOptions(entry ProviderEntry, out any) error {
	if len(entry.Options) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("config: options decoder: %w", err)
	}
	if err := dec.Decode(entry.Options); err != nil {
		return fmt.Errorf("config: %s options: %w", entry.Name, err)
	}
	return nil
}
