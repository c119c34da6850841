package native

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lispc/lispc/pkg/vm"
)

// CompileCache backs the `cache-get!`/`cache-set!`/`cache-del!` native
// functions with Redis: a process-external memoized compile cache keyed
// by source hash, shared across a multi-host build farm rather than
// scoped to one process's memory. Single-node only; the compile cache
// has no need for cluster or sentinel topologies.
type CompileCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCompileCache connects to a Redis instance at addr. ttl of zero
// means entries never expire.
func NewCompileCache(addr string, ttl time.Duration) *CompileCache {
	return &CompileCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// Close releases the underlying Redis connection pool.
func (c *CompileCache) Close() error {
	return c.client.Close()
}

// Register installs cache-get!/cache-set!/cache-del! into machine's
// globals.
func (c *CompileCache) Register(machine *vm.VM) {
	machine.DefineNative("cache-get!", vm.Arity{Kind: vm.ArityNary, Count: 1}, c.get)
	machine.DefineNative("cache-set!", vm.Arity{Kind: vm.ArityNary, Count: 2}, c.set)
	machine.DefineNative("cache-del!", vm.Arity{Kind: vm.ArityNary, Count: 1}, c.del)
}

func (c *CompileCache) get(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, err := arity1("cache-get!", args)
	if err != nil {
		return nil, err
	}
	key, err := asString("cache-get!", a)
	if err != nil {
		return nil, err
	}
	val, err := c.client.Get(context.Background(), key).Result()
	if err == redis.Nil {
		return &vm.NilObject{}, nil
	}
	if err != nil {
		return nil, &vm.Error{Msg: "cache-get!: " + err.Error()}
	}
	return &vm.StringObject{Val: val}, nil
}

func (c *CompileCache) set(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	keyObj, valObj, err := arity2("cache-set!", args)
	if err != nil {
		return nil, err
	}
	key, err := asString("cache-set!", keyObj)
	if err != nil {
		return nil, err
	}
	val, err := asString("cache-set!", valObj)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(context.Background(), key, val, c.ttl).Err(); err != nil {
		return nil, &vm.Error{Msg: "cache-set!: " + err.Error()}
	}
	return &vm.TrueObject{}, nil
}

func (c *CompileCache) del(machine *vm.VM, args []vm.Object) (vm.Object, error) {
	a, err := arity1("cache-del!", args)
	if err != nil {
		return nil, err
	}
	key, err := asString("cache-del!", a)
	if err != nil {
		return nil, err
	}
	if err := c.client.Del(context.Background(), key).Err(); err != nil {
		return nil, &vm.Error{Msg: "cache-del!: " + err.Error()}
	}
	return &vm.TrueObject{}, nil
}
