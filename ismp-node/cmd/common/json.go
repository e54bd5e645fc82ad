package common

import (
	"encoding/json"
	"fmt"
)

// PrettyJSONMarshal returns pretty-printed JSON encoding of v.
func PrettyJSONMarshal(v interface{}) ([]byte, error) {
	formatted, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to pretty JSON: %w", err)
	}
	return formatted, nil
}

// PrintJSON writes the pretty-printed JSON encoding of v to standard output.
func PrintJSON(v interface{}) error {
	formatted, err := PrettyJSONMarshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(formatted))
	return nil
}
