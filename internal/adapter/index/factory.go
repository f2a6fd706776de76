package index

import (
	"fmt"

	"github.com/vanessasara/full-stack-Devops/internal/port"
)

// New returns the index strategy named kind ("flat" or "ivf").
func New(kind string, lists, probes int) (port.VectorIndex, error) {
	switch kind {
	case "", "flat":
		return NewFlat(), nil
	case "ivf":
		return NewIVF(lists, probes), nil
	}
	return nil, fmt.Errorf("unsupported index: %s", kind)
}
