package api

import (
	"net/http"
	"time"

	"github.com/mondominator/opsdec/internal/adapter"
	"github.com/mondominator/opsdec/internal/audit"
	"github.com/mondominator/opsdec/internal/authcore"
	"github.com/mondominator/opsdec/internal/config"
	"github.com/mondominator/opsdec/internal/cryptokit"
	"github.com/mondominator/opsdec/internal/imagecache"
	"github.com/mondominator/opsdec/internal/pushhub"
	"github.com/mondominator/opsdec/internal/sessionengine"
	"github.com/mondominator/opsdec/internal/store"
)

// API holds every dependency the HTTP handlers need and builds the chi
// router over them.
type API struct {
	store      *store.Store
	auth       *authcore.Service
	tokens     *cryptokit.TokenManager
	encryptor  *cryptokit.CredentialEncryptor
	audit      *audit.Logger
	images     *imagecache.Cache
	hub        *pushhub.Hub
	engine     *sessionengine.Engine
	adapters   *adapter.Registry
	cfg        *config.Config
	httpClient *http.Client
	startTime  time.Time
	restart    chan<- struct{}
}

// Deps bundles the constructor arguments for New.
type Deps struct {
	Store      *store.Store
	Auth       *authcore.Service
	Tokens     *cryptokit.TokenManager
	Encryptor  *cryptokit.CredentialEncryptor
	Audit      *audit.Logger
	Images     *imagecache.Cache
	Hub        *pushhub.Hub
	Engine     *sessionengine.Engine
	Adapters   *adapter.Registry
	Config     *config.Config
	Restart    chan<- struct{}
}

// New builds an API from its dependencies.
func New(d Deps) *API {
	return &API{
		store:      d.Store,
		auth:       d.Auth,
		tokens:     d.Tokens,
		encryptor:  d.Encryptor,
		audit:      d.Audit,
		images:     d.Images,
		hub:        d.Hub,
		engine:     d.Engine,
		adapters:   d.Adapters,
		cfg:        d.Config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		startTime:  time.Now(),
		restart:    d.Restart,
	}
}
