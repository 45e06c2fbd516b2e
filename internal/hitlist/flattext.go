package hitlist

import "encoding/json"

// ExtractFlatText recursively collects every string value in raw JSON bytes
// and joins them with spaces, for feeding the semantic layer's embedding
// computation (spec §4.9 step 4). Grounded on
// _examples/original_source/FileHandler/file_handler.py's
// extract_text_from_json.
func ExtractFlatText(raw []byte) (string, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	var parts []string
	collectStrings(v, &parts)
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out, nil
}

func collectStrings(v interface{}, out *[]string) {
	switch t := v.(type) {
	case string:
		*out = append(*out, t)
	case []interface{}:
		for _, e := range t {
			collectStrings(e, out)
		}
	case map[string]interface{}:
		for _, e := range t {
			collectStrings(e, out)
		}
	}
}
