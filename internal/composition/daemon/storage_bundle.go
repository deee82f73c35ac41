package daemon

import (
	"vision-wallet/go-backend/internal/config"
	"vision-wallet/go-backend/internal/keystore"
	"vision-wallet/go-backend/internal/storage"
)

// StorageBundle is the opened backend plus the keystore bound to one
// namespace on it.
type StorageBundle struct {
	Store    storage.Store
	Keystore *keystore.Keystore
	Path     string
}

func BuildStorageBundle(cfg config.StorageConfig) (StorageBundle, error) {
	storeCfg := config.Config{Storage: cfg}.StoreConfig()
	store, err := storage.Open(storeCfg)
	if err != nil {
		return StorageBundle{}, err
	}
	ks, err := keystore.New(store, cfg.Namespace)
	if err != nil {
		_ = store.Close()
		return StorageBundle{}, err
	}
	path := ""
	if storage.NormalizeBackend(storeCfg.Backend) != storage.BackendMemory {
		path = storeCfg.ResolvedPath()
	}
	return StorageBundle{Store: store, Keystore: ks, Path: path}, nil
}
