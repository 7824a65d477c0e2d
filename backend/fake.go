package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
)

// FakeEngine is an in-memory Engine holding at most one container, for
// tests and the headless test mode.
type FakeEngine struct {
	mu sync.Mutex

	PingErr   error
	CreateErr error
	StartErr  error
	StopErr   error
	RemoveErr error
	PullErr   error

	// Calls records operation names in order ("stop", "remove", ...).
	Calls []string

	nextID     int
	ctr        *fakeContainer
	LastCfg    *container.Config
	LastHost   *container.HostConfig
}

type fakeContainer struct {
	id      string
	running bool
	env     []string
	ports   nat.PortMap
}

// SetContainer installs a container as the observed state.
func (f *FakeEngine) SetContainer(running bool, env []string, ports nat.PortMap) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.ctr = &fakeContainer{
		id:      fmt.Sprintf("ctr-%d", f.nextID),
		running: running,
		env:     env,
		ports:   ports,
	}
}

// DestructiveOps counts lifecycle operations that tear down or replace
// the container.
func (f *FakeEngine) DestructiveOps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		switch c {
		case "stop", "remove", "create":
			n++
		}
	}
	return n
}

func (f *FakeEngine) record(op string) {
	f.Calls = append(f.Calls, op)
}

func (f *FakeEngine) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ping")
	return f.PingErr
}

func (f *FakeEngine) Inspect(_ context.Context, name string) (*ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctr == nil {
		return nil, nil
	}
	return &ContainerInfo{
		ID:      f.ctr.id,
		Running: f.ctr.running,
		Env:     append([]string(nil), f.ctr.env...),
		Ports:   f.ctr.ports,
	}, nil
}

func (f *FakeEngine) Create(_ context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create")
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.nextID++
	f.LastCfg = cfg
	f.LastHost = hostCfg
	f.ctr = &fakeContainer{
		id:    fmt.Sprintf("ctr-%d", f.nextID),
		env:   cfg.Env,
		ports: hostCfg.PortBindings,
	}
	return f.ctr.id, nil
}

func (f *FakeEngine) Start(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start")
	if f.StartErr != nil {
		return f.StartErr
	}
	if f.ctr != nil && f.ctr.id == id {
		f.ctr.running = true
	}
	return nil
}

func (f *FakeEngine) Stop(_ context.Context, id string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop")
	if f.StopErr != nil {
		return f.StopErr
	}
	if f.ctr != nil && f.ctr.id == id {
		f.ctr.running = false
	}
	return nil
}

func (f *FakeEngine) Remove(_ context.Context, id string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove")
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	if f.ctr != nil && f.ctr.id == id {
		f.ctr = nil
	}
	return nil
}

func (f *FakeEngine) Pull(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pull")
	return f.PullErr
}
