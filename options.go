package models

import (
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// DecodeOptions decodes named options into target, which must be a pointer to an
// options struct already holding its defaults. Keys are matched against json tags
// and embedded option structs are flattened, so a specialization's options
// accept every base option. Values are weakly typed ("768" decodes into an int).
//
// Keys no field accepts are reported as an *UnrecognizedOptionError and leave
// target partially decoded.
func DecodeOptions(options map[string]interface{}, target interface{}, hooks ...mapstructure.DecodeHookFunc) error {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(hooks...),
		Metadata:         &md,
		Result:           target,
		TagName:          "json",
		Squash:           true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create options decoder")
	}

	if err := decoder.Decode(options); err != nil {
		return errors.Wrap(err, "failed to decode options")
	}

	if len(md.Unused) > 0 {
		unused := append([]string(nil), md.Unused...)
		sort.Strings(unused)
		return &UnrecognizedOptionError{Options: unused}
	}
	return nil
}
