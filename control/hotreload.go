// control/hotreload.go
// Re-reads the configuration file into a ConfigStore.

package control

import (
	"github.com/containerd/log"
)

// Reload loads path over the current snapshot, applies environment
// overrides and installs the result. On error the store is unchanged.
func (cs *ConfigStore) Reload(path string) error {
	cfg, err := LoadFile(path, cs.GetSnapshot())
	if err != nil {
		return err
	}
	if cfg, err = ApplyEnv(cfg); err != nil {
		return err
	}
	if err := cs.SetConfig(cfg); err != nil {
		return err
	}
	log.L.WithField("path", path).Info("configuration reloaded")
	return nil
}
