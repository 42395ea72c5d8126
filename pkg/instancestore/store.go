package instancestore

import (
	"github.com/cuemby/corescale/pkg/types"
)

// Store defines the interface for instance record storage. It is
// deliberately dumb: it persists whatever it is handed and does not
// know about expected versions or legal transitions — that check
// belongs to pkg/instancemanager, which wraps a Store.
type Store interface {
	PutInstance(inst *types.Instance) error
	GetInstance(id string) (*types.Instance, error)
	ListInstances() ([]*types.Instance, error)
	DeleteInstance(id string) error

	// Version is the single monotonically increasing counter bumped
	// alongside every successful instance write.
	GetVersion() (int64, error)
	SetVersion(v int64) error

	Close() error
}
