package completion

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// MaxSerializedLen bounds the JSON fallback of ExtractText, in runes.
const MaxSerializedLen = 20000

const truncatedMarker = "\n\n[truncated]"

var (
	textFields  = []string{"content", "text", "outputText", "output", "answer"}
	listFields  = []string{"choices", "outputs"}
	choicePaths = []string{"text", "message.content", "content"}
)

// ExtractText normalizes a completion response to plain text.
//
// Precedence: nil, including a typed nil map or pointer, is empty; a string
// is returned as is; then the first non-empty known text field; then the
// first element of a choices/outputs list; then the first string property in
// field order (maps are ordered by key); finally the whole value as indented
// JSON, truncated to MaxSerializedLen runes.
func ExtractText(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprint(raw)
	}
	res := gjson.ParseBytes(data)

	switch {
	case res.Type == gjson.Null:
		return ""
	case res.Type == gjson.String:
		return res.Str
	case res.IsArray():
		if s, ok := elementText(res.Get("0")); ok {
			return s
		}
	case res.IsObject():
		for _, field := range textFields {
			if r := res.Get(field); r.Type == gjson.String && r.Str != "" {
				return r.Str
			}
		}
		for _, field := range listFields {
			if s, ok := elementText(res.Get(field + ".0")); ok {
				return s
			}
		}
		if s, ok := firstString(res); ok {
			return s
		}
	}

	return serialize(raw)
}

func elementText(r gjson.Result) (string, bool) {
	if !r.Exists() {
		return "", false
	}
	if r.Type == gjson.String {
		return r.Str, r.Str != ""
	}
	if !r.IsObject() {
		return "", false
	}
	for _, path := range choicePaths {
		if v := r.Get(path); v.Type == gjson.String && v.Str != "" {
			return v.Str, true
		}
	}
	return "", false
}

func firstString(obj gjson.Result) (string, bool) {
	var found string
	obj.ForEach(func(_, value gjson.Result) bool {
		switch {
		case value.Type == gjson.String && value.Str != "":
			found = value.Str
		case value.IsArray():
			value.ForEach(func(_, item gjson.Result) bool {
				if item.Type == gjson.String && item.Str != "" {
					found = item.Str
				}
				return found == ""
			})
		}
		return found == ""
	})
	return found, found != ""
}

func serialize(raw any) string {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Sprint(raw)
	}
	runes := []rune(string(data))
	if len(runes) <= MaxSerializedLen {
		return string(data)
	}
	return string(runes[:MaxSerializedLen]) + truncatedMarker
}
