// Package output writes run reports to disk as indented JSON.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coullessi/arcdefender/internal/message"
)

// DefaultDir is where reports land when no output directory is given.
const DefaultDir = "arcdefender-output"

// Writer persists reports under a base directory, creating it on first use.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter returns a Writer rooted at dir, or DefaultDir when dir is empty.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = DefaultDir
	}
	return &Writer{dir: dir, now: time.Now}
}

// Dir returns the directory reports are written to.
func (w *Writer) Dir() string {
	return w.dir
}

// DefaultFileName builds a timestamped name like prefix-20060102-150405.ext.
func (w *Writer) DefaultFileName(prefix, ext string) string {
	return fmt.Sprintf("%s-%s.%s", prefix, w.now().Format("20060102-150405"), ext)
}

// WriteJSON writes data as indented JSON to a timestamped file under the
// output directory and returns the full path.
func (w *Writer) WriteJSON(prefix string, data interface{}) (string, error) {
	return w.WriteJSONFile(w.DefaultFileName(prefix, "json"), data)
}

// WriteJSONFile writes data as indented JSON to filename under the output
// directory and returns the full path.
func (w *Writer) WriteJSONFile(filename string, data interface{}) (string, error) {
	if _, err := os.Stat(w.dir); os.IsNotExist(err) {
		if err := os.MkdirAll(w.dir, os.ModePerm); err != nil {
			return "", err
		}
	}

	fullpath := filepath.Join(w.dir, filename)
	file, err := os.Create(fullpath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return "", err
	}

	message.Success("Output written to %s", fullpath)

	return fullpath, nil
}
