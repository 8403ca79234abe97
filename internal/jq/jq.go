package jq

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/itchyny/gojq"
)

// PerformJqQueryOnFile runs a jq expression against the JSON document stored
// at filePath.
func PerformJqQueryOnFile(filePath string, jqQuery string) ([]byte, error) {
	jsonContent, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return PerformJqQuery(jsonContent, jqQuery)
}

// PerformJqQuery runs a jq expression against jsonContent. Queries that emit
// several values return them newline separated, the way the jq CLI prints a
// stream.
func PerformJqQuery(jsonContent []byte, jqQuery string) ([]byte, error) {
	if jqQuery == "" {
		return nil, errors.New("jq query is empty")
	}

	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq query: %v", err)
	}

	var jsonData interface{}
	if err := json.Unmarshal(jsonContent, &jsonData); err != nil {
		return nil, fmt.Errorf("failed to parse JSON input: %v", err)
	}

	var out bytes.Buffer
	iter := query.Run(jsonData)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			return nil, fmt.Errorf("jq query failed: %v", err)
		}

		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.Write(encoded)
	}

	return out.Bytes(), nil
}
