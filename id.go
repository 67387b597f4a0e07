package escalate

import "github.com/xraph/escalate/id"

// ID is the primary identifier type for all escalate entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
