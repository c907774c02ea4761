package modulemanager

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/harmonia-media/harmonia/internal/logger"
)

// Module is implemented by every feature module.
type Module interface {
	ID() string
	Name() string
	Core() bool
	Migrate(db *gorm.DB) error
	Init() error
}

// RouteRegistrar is implemented by modules that expose HTTP routes.
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// Starter is implemented by modules that run background workers.
type Starter interface {
	Start() error
	Stop() error
}

// ModuleRegistry tracks registered modules and drives their lifecycle.
type ModuleRegistry struct {
	mu              sync.RWMutex
	modules         map[string]Module
	disabledModules map[string]bool
	initialized     bool
}

// Registry is the global module registry; modules self-register from
// their init functions.
var Registry = &ModuleRegistry{
	modules:         make(map[string]Module),
	disabledModules: make(map[string]bool),
}

func Register(m Module) {
	Registry.Register(m)
}

func (r *ModuleRegistry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("Module %s (%s) registered after initialization", m.Name(), m.ID())
	}
	r.modules[m.ID()] = m
	logger.Info("Module registered: %s (%s)", m.Name(), m.ID())
}

// LoadAll migrates and initializes every enabled module in deterministic
// ID order.
func LoadAll(db *gorm.DB) error {
	return Registry.LoadAll(db)
}

func (r *ModuleRegistry) LoadAll(db *gorm.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		logger.Warn("Module system already initialized")
		return nil
	}

	config, err := LoadConfig(GetDefaultConfigPath())
	if err != nil {
		logger.Warn("Failed to load module config, using defaults: %v", err)
		config = &ModuleConfig{}
	}
	for _, moduleID := range config.Modules.Disabled {
		r.disabledModules[moduleID] = true
		logger.Info("Module disabled via configuration: %s", moduleID)
	}

	ids := make([]string, 0, len(r.modules))
	for id := range r.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	logger.Info("Loading %d modules", len(ids))
	for _, id := range ids {
		module := r.modules[id]
		if r.disabledModules[id] {
			if module.Core() {
				return fmt.Errorf("attempted to disable core module: %s", id)
			}
			logger.Warn("Skipping disabled module: %s", module.Name())
			continue
		}

		if err := module.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", module.Name(), err)
		}
		if err := module.Init(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", module.Name(), err)
		}
		logger.Info("Module loaded: %s", module.Name())
	}

	r.initialized = true
	return nil
}

// StartAll starts background workers on every enabled module that has
// them.
func StartAll() error {
	return Registry.StartAll()
}

func (r *ModuleRegistry) StartAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, module := range r.modules {
		if r.disabledModules[id] {
			continue
		}
		if starter, ok := module.(Starter); ok {
			if err := starter.Start(); err != nil {
				return fmt.Errorf("failed to start %s: %w", module.Name(), err)
			}
		}
	}
	return nil
}

// StopAll stops background workers; errors are logged, not propagated, so
// shutdown always completes.
func StopAll() {
	Registry.StopAll()
}

func (r *ModuleRegistry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, module := range r.modules {
		if r.disabledModules[id] {
			continue
		}
		if starter, ok := module.(Starter); ok {
			if err := starter.Stop(); err != nil {
				logger.Warn("Failed to stop %s: %v", module.Name(), err)
			}
		}
	}
}

// GetModule returns a module by ID.
func GetModule(id string) (Module, bool) {
	return Registry.GetModule(id)
}

func (r *ModuleRegistry) GetModule(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	module, exists := r.modules[id]
	return module, exists
}

// ListModules returns all registered modules.
func ListModules() []Module {
	return Registry.ListModules()
}

func (r *ModuleRegistry) ListModules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modules := make([]Module, 0, len(r.modules))
	for _, module := range r.modules {
		modules = append(modules, module)
	}
	return modules
}

// RegisterRoutes wires every route-exposing module into the router.
func RegisterRoutes(router *gin.Engine) {
	Registry.RegisterRoutes(router)
}

func (r *ModuleRegistry) RegisterRoutes(router *gin.Engine) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, module := range r.modules {
		if r.disabledModules[id] {
			continue
		}
		if registrar, ok := module.(RouteRegistrar); ok {
			registrar.RegisterRoutes(router)
		}
	}
}
