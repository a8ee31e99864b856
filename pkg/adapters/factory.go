package adapters

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// AdapterConstructor возвращает новый, еще не подключенный адаптер
type AdapterConstructor func() Adapter

// Factory - реестр конструкторов по каноническому типу СУБД (см. NormalizeType)
type Factory struct {
	mu       sync.RWMutex
	registry map[string]AdapterConstructor
}

func NewFactory() *Factory {
	return &Factory{registry: make(map[string]AdapterConstructor)}
}

// Register регистрирует конструктор; повторная регистрация заменяет прежний
func (f *Factory) Register(dbType string, constructor AdapterConstructor) {
	f.mu.Lock()
	f.registry[NormalizeType(dbType)] = constructor
	f.mu.Unlock()
}

func (f *Factory) Unregister(dbType string) {
	f.mu.Lock()
	delete(f.registry, NormalizeType(dbType))
	f.mu.Unlock()
}

func (f *Factory) lookup(dbType string) (AdapterConstructor, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.registry[NormalizeType(dbType)]
	return c, ok
}

func (f *Factory) IsRegistered(dbType string) bool {
	_, ok := f.lookup(dbType)
	return ok
}

// GetRegisteredTypes - отсортированные канонические типы
func (f *Factory) GetRegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.registry))
}

// CreateWithoutConnect создает адаптер без подключения
// Так адаптер получает connection.Manager: подключением и переподключением управляет он.
func (f *Factory) CreateWithoutConnect(dbType string) (Adapter, error) {
	constructor, ok := f.lookup(dbType)
	if !ok {
		return nil, fmt.Errorf("unknown database type: %s (available types: %v)", dbType, f.GetRegisteredTypes())
	}
	return constructor(), nil
}

// Create создает адаптер и сразу подключает его
func (f *Factory) Create(ctx context.Context, cfg Config) (Adapter, error) {
	adapter, err := f.CreateWithoutConnect(cfg.Type)
	if err != nil {
		return nil, err
	}
	if err := adapter.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Type, err)
	}
	return adapter, nil
}

// defaultFactory заполняется из init() пакетов адаптеров:
//
//	func init() {
//	    adapters.Register(adapters.TypeSQLite, func() adapters.Adapter { return &Adapter{} })
//	}
var defaultFactory = NewFactory()

func Register(dbType string, constructor AdapterConstructor) {
	defaultFactory.Register(dbType, constructor)
}

func Unregister(dbType string) { defaultFactory.Unregister(dbType) }

func IsRegistered(dbType string) bool { return defaultFactory.IsRegistered(dbType) }

func GetRegisteredTypes() []string { return defaultFactory.GetRegisteredTypes() }

// New создает и подключает адаптер через общий реестр
func New(ctx context.Context, cfg Config) (Adapter, error) {
	return defaultFactory.Create(ctx, cfg)
}

// NewWithoutConnect создает адаптер через общий реестр без подключения
func NewWithoutConnect(dbType string) (Adapter, error) {
	return defaultFactory.CreateWithoutConnect(dbType)
}
