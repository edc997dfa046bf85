package session

import (
	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/internal/kvstore"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

// Context bundles the session-scoped collaborators every flow needs. It is
// built once at startup and passed down explicitly.
type Context struct {
	Sessions *Store
	KV       kvstore.Store
	API      *api.Client
	Logger   *logging.Logger
}

// NewContext wires a session store and an API client over kv.
func NewContext(kv kvstore.Store, baseURL string, logger *logging.Logger, opts ...api.Option) *Context {
	if logger == nil {
		logger = logging.Default()
	}
	sessions := NewStore(kv, logger.With("component", "session"))
	return &Context{
		Sessions: sessions,
		KV:       kv,
		API:      api.NewClient(baseURL, sessions, logger.With("component", "api"), opts...),
		Logger:   logger,
	}
}
