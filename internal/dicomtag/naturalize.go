// Package dicomtag converts between the tag-keyed DICOM JSON model and
// the friendly-named attribute maps the viewer consumes. Keywords and VRs
// come from the suyashkumar/dicom tag dictionary.
package dicomtag

import (
	"fmt"
	"strconv"

	"github.com/imagingworks/pixels-dicom-connector/internal/models"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// parseTagKey parses a GGGGEEEE hex key into a dictionary tag
func parseTagKey(key string) (tag.Tag, bool) {
	if len(key) != 8 {
		return tag.Tag{}, false
	}
	group, err := strconv.ParseUint(key[:4], 16, 16)
	if err != nil {
		return tag.Tag{}, false
	}
	element, err := strconv.ParseUint(key[4:], 16, 16)
	if err != nil {
		return tag.Tag{}, false
	}
	return tag.Tag{Group: uint16(group), Element: uint16(element)}, true
}

func formatTagKey(t tag.Tag) string {
	return fmt.Sprintf("%04X%04X", t.Group, t.Element)
}

// Naturalize converts a tag-keyed attribute map ({"00100010": {vr, Value}})
// into a friendly-named dataset. Single values unwrap to scalars, person
// names unwrap to their Alphabetic form, sequences naturalize recursively,
// and tags missing from the dictionary keep their hex key.
func Naturalize(tagged map[string]any) models.Dataset {
	ds := make(models.Dataset, len(tagged))

	for key, raw := range tagged {
		element, ok := raw.(map[string]any)
		if !ok {
			ds[naturalKey(key)] = raw
			continue
		}

		value, ok := element["Value"]
		if !ok {
			continue
		}

		vr, _ := element["vr"].(string)
		ds[naturalKey(key)] = naturalizeValue(vr, value)
	}

	return ds
}

func naturalKey(key string) string {
	t, ok := parseTagKey(key)
	if !ok {
		return key
	}
	info, err := tag.Find(t)
	if err != nil || info.Name == "" {
		return key
	}
	return info.Name
}

func naturalizeValue(vr string, value any) any {
	values, ok := value.([]any)
	if !ok {
		return value
	}

	out := make([]any, 0, len(values))
	for _, v := range values {
		switch item := v.(type) {
		case map[string]any:
			if vr == "PN" {
				if alphabetic, ok := item["Alphabetic"].(string); ok {
					out = append(out, alphabetic)
					continue
				}
			}
			// sequence item: a nested tag-keyed map
			out = append(out, map[string]any(Naturalize(item)))
		default:
			out = append(out, v)
		}
	}

	if len(out) == 1 {
		return out[0]
	}
	return out
}

// Denaturalize converts a friendly-named dataset back into the tag-keyed
// DICOM JSON model. Keys not found in the dictionary are kept verbatim
// when they already look like hex tag keys and dropped otherwise.
func Denaturalize(ds models.Dataset) map[string]any {
	tagged := make(map[string]any, len(ds))

	for key, value := range ds {
		info, err := tag.FindByName(key)
		if err != nil {
			if _, ok := parseTagKey(key); ok {
				tagged[key] = value
			}
			continue
		}

		tagged[formatTagKey(info.Tag)] = map[string]any{
			"vr":    info.VR,
			"Value": denaturalizeValue(info.VR, value),
		}
	}

	return tagged
}

func denaturalizeValue(vr string, value any) []any {
	var values []any
	switch v := value.(type) {
	case []any:
		values = v
	default:
		values = []any{v}
	}

	out := make([]any, 0, len(values))
	for _, v := range values {
		switch item := v.(type) {
		case string:
			if vr == "PN" {
				out = append(out, map[string]any{"Alphabetic": item})
				continue
			}
			out = append(out, item)
		case map[string]any:
			if vr == "SQ" {
				out = append(out, Denaturalize(models.Dataset(item)))
				continue
			}
			out = append(out, item)
		case models.Dataset:
			if vr == "SQ" {
				out = append(out, Denaturalize(item))
				continue
			}
			out = append(out, map[string]any(item))
		default:
			out = append(out, v)
		}
	}
	return out
}
