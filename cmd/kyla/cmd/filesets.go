package cmd

import (
	"github.com/google/uuid"
)

func parseFileSetIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(args))
	for i, a := range args {
		id, err := uuid.Parse(a)
		if err != nil {
			return nil, usageErrorf("invalid fileset uuid %q: %v", a, err)
		}
		ids[i] = id
	}
	return ids, nil
}
