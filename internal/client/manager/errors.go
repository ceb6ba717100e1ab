package manager

import (
	"fmt"

	"github.com/eidolon-labs/notesync/internal/client/payload"
	"github.com/eidolon-labs/notesync/internal/common"
)

func errItemNotFound(uuid string) error {
	return fmt.Errorf("manager: item %s: %w", uuid, common.ErrorNotFound)
}

func errWrongType(uuid string, want payload.ContentType) error {
	return fmt.Errorf("manager: item %s is not a %s: %w", uuid, want, common.ErrorIncorrectMetadata)
}
