package logging

import (
	"fmt"
	"io"

	"github.com/Graylog2/go-gelf/gelf"
)

// DialGelf connects a GELF UDP writer for shipping logs to Graylog.
func DialGelf(addr string) (io.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("error connecting GELF writer: %w", err)
	}
	return w, nil
}
