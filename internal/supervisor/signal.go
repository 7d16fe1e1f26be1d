package supervisor

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vitaliisemenov/hostagent/internal/config"
)

// reloadDebounceWindow tolerates signal storms: a SIGHUP arriving
// within this window of the previous one is dropped rather than
// triggering a second reload.
const reloadDebounceWindow = time.Second

// ReloadHandler listens for SIGHUP and applies a debounced,
// safe-subset configuration reload to a Supervisor. Structural
// changes the Supervisor can't apply live are logged and deferred to
// the next full restart.
type ReloadHandler struct {
	supervisor *Supervisor

	lastReload atomic.Value // time.Time

	sigChan chan os.Signal
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewReloadHandler builds a ReloadHandler for supervisor. Call Start
// to begin listening.
func NewReloadHandler(supervisor *Supervisor) *ReloadHandler {
	return &ReloadHandler{
		supervisor: supervisor,
		sigChan:    make(chan os.Signal, 1),
		done:       make(chan struct{}),
	}
}

// Start registers for SIGHUP and processes reloads in the
// background. Returns immediately.
func (h *ReloadHandler) Start() {
	signal.Notify(h.sigChan, syscall.SIGHUP)
	h.wg.Add(1)
	go h.run()
}

// Stop unregisters the signal and waits for the worker goroutine to
// exit.
func (h *ReloadHandler) Stop() {
	signal.Stop(h.sigChan)
	close(h.done)
	h.wg.Wait()
}

func (h *ReloadHandler) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.sigChan:
			if h.debounced() {
				h.supervisor.logger.Debug("SIGHUP reload debounced")
				continue
			}
			h.lastReload.Store(time.Now())
			h.reload()
		case <-h.done:
			return
		}
	}
}

func (h *ReloadHandler) debounced() bool {
	v := h.lastReload.Load()
	if v == nil {
		return false
	}
	return time.Since(v.(time.Time)) < reloadDebounceWindow
}

func (h *ReloadHandler) reload() {
	log := h.supervisor.logger
	log.Info("SIGHUP received, reloading configuration")

	newCfg, err := config.Reload()
	if err != nil {
		log.Error("config reload failed", "error", err)
		h.supervisor.auditLogger.ConfigReload("sighup", false, err.Error())
		return
	}

	deferred := h.supervisor.ApplyReload(newCfg)
	if len(deferred) > 0 {
		log.Warn("reload applied safe subset only; some changes require a restart", "deferred", deferred)
	}
	h.supervisor.auditLogger.ConfigReload("sighup", true, "")
}
