package governance

import (
	"context"
	"sync"
)

// StaticRegistry is an in-memory whitelist
type StaticRegistry struct {
	members map[string]struct{}
	mutex   sync.RWMutex
}

func NewStaticRegistry(members ...string) *StaticRegistry {
	r := &StaticRegistry{members: make(map[string]struct{}, len(members))}
	for _, m := range members {
		r.members[m] = struct{}{}
	}
	return r
}

func (r *StaticRegistry) IsWhitelisted(ctx context.Context, identity string) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.members[identity]
	return ok, nil
}

func (r *StaticRegistry) Add(identity string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.members[identity] = struct{}{}
}

func (r *StaticRegistry) Remove(identity string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.members, identity)
}
