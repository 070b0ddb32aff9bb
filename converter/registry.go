package converter

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"mongosession/model"
)

// TypeRegistry maps attribute Go types to the names stored in the "@class"
// discriminator and back. A type is matched exactly: registering SavedRequest
// does not cover *SavedRequest.
type TypeRegistry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

// NewTypeRegistry returns a registry holding the builtin kinds that have no
// natural BSON representation.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
	r.MustRegister("int", int(0))
	r.MustRegister("int8", int8(0))
	r.MustRegister("int16", int16(0))
	r.MustRegister("uint", uint(0))
	r.MustRegister("uint8", uint8(0))
	r.MustRegister("uint16", uint16(0))
	r.MustRegister("uint32", uint32(0))
	r.MustRegister("uint64", uint64(0))
	r.MustRegister("float32", float32(0))
	r.MustRegister("[]string", []string(nil))
	r.MustRegister("map[string]string", map[string]string(nil))
	r.MustRegister("time.Duration", time.Duration(0))
	return r
}

// NewDefaultRegistry returns the builtin registry plus the attribute types the
// HTTP layer stores in sessions.
func NewDefaultRegistry() *TypeRegistry {
	r := NewTypeRegistry()
	r.MustRegister("SavedRequest", &model.SavedRequest{})
	r.MustRegister("DeviceInfo", model.DeviceInfo{})
	return r
}

// Register associates name with the dynamic type of prototype. Registering the
// same pair twice is a no-op.
func (r *TypeRegistry) Register(name string, prototype any) error {
	if name == "" {
		return fmt.Errorf("register: empty type name")
	}
	if prototype == nil {
		return fmt.Errorf("register %q: nil prototype", name)
	}
	if isNatural(prototype) {
		return fmt.Errorf("register %q: %T is stored natively", name, prototype)
	}

	t := reflect.TypeOf(prototype)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("register %q: name already bound to %s", name, existing)
	}
	if existing, ok := r.byType[t]; ok {
		return fmt.Errorf("register %q: %s already registered as %q", name, t, existing)
	}

	r.byName[name] = t
	r.byType[t] = name
	return nil
}

func (r *TypeRegistry) MustRegister(name string, prototype any) {
	if err := r.Register(name, prototype); err != nil {
		panic(err)
	}
}

func (r *TypeRegistry) NameOf(t reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[t]
	return name, ok
}

func (r *TypeRegistry) TypeOf(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}
