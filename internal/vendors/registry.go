// Package vendors 维护 PCI 厂商 ID 到名称的注册表，供报告与诊断信息使用。
// 解析器只接受 AMD 的缓存布局，其余条目仅用于在拒绝时给出可读的厂商名。
package vendors

import (
	"fmt"
	"sort"
	"sync"
)

var globalRegistry = newRegistry()

// Vendor 记录一个 GPU 厂商的静态信息。
type Vendor struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
	// Parsable 表示该厂商的缓存布局可以被解析。
	Parsable bool `json:"parsable"`
}

type registry struct {
	mu      sync.RWMutex
	vendors map[uint32]Vendor
}

func newRegistry() *registry {
	return &registry{vendors: make(map[uint32]Vendor)}
}

// Register 将厂商加入全局注册表，重复 ID 会返回错误。
func Register(v Vendor) error {
	return globalRegistry.register(v)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(v Vendor) {
	if err := Register(v); err != nil {
		panic(err)
	}
}

// Resolve 返回指定 ID 的厂商信息。
func Resolve(id uint32) (Vendor, bool) {
	return globalRegistry.resolve(id)
}

// Name 返回厂商名，未注册时返回 "unknown"。
func Name(id uint32) string {
	if v, ok := Resolve(id); ok {
		return v.Name
	}
	return "unknown"
}

// List 返回按 ID 排序的厂商列表。
func List() []Vendor {
	return globalRegistry.list()
}

// Parsable 返回缓存布局可以被解析的厂商，按 ID 排序。
func Parsable() []Vendor {
	var out []Vendor
	for _, v := range List() {
		if v.Parsable {
			out = append(out, v)
		}
	}
	return out
}

func (r *registry) register(v Vendor) error {
	if v.Name == "" {
		return fmt.Errorf("vendor 0x%x: name is required", v.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.vendors[v.ID]; exists {
		return fmt.Errorf("vendor 0x%x already registered as %s", v.ID, existing.Name)
	}
	r.vendors[v.ID] = v
	return nil
}

func (r *registry) resolve(id uint32) (Vendor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.vendors[id]
	return v, ok
}

func (r *registry) list() []Vendor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.vendors) == 0 {
		return nil
	}

	result := make([]Vendor, 0, len(r.vendors))
	for _, v := range r.vendors {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
