// Package backend manages the lifecycle of the containerized
// faster-whisper instance that hosts the ASR model. The container reads
// its model, beam size, and language from environment variables at
// startup, so changing any of them means destroying and recreating the
// instance.
//
// Every operation converts management-interface failures into the Error
// status instead of propagating them; callers only ever see a Status.
package backend

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"

	"whisperkey/log"
)

// Status is the observed state of the backend instance. It is derived on
// every query, never cached.
type Status string

const (
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusNotFound Status = "not_found"
	// StatusError means the management interface itself is unreachable or
	// failed, distinct from "instance absent".
	StatusError Status = "error"
)

// Environment contract: the container reads these at process startup.
const (
	EnvModel = "WHISPER_MODEL"
	EnvBeam  = "WHISPER_BEAM"
	EnvLang  = "WHISPER_LANG"
)

// Params are the three startup parameters injected into the container
// environment.
type Params struct {
	Model    string
	Beam     int
	Language string
}

// Config describes the managed instance.
type Config struct {
	Name          string
	Image         string
	Port          int
	Volume        string // named volume for the model cache
	AutoPull      bool
	StopGrace     time.Duration // plain stop
	RecreateGrace time.Duration // stop during recreation, kept short
	SettleDelay   time.Duration // wait after recreation start
	Defaults      Params
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "faster-whisper"
	}
	if c.Image == "" {
		c.Image = "linuxserver/faster-whisper:gpu"
	}
	if c.Port == 0 {
		c.Port = 10300
	}
	if c.Volume == "" {
		c.Volume = "whisper-models"
	}
	if c.StopGrace == 0 {
		c.StopGrace = 10 * time.Second
	}
	if c.RecreateGrace == 0 {
		c.RecreateGrace = 5 * time.Second
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.Defaults.Model == "" {
		c.Defaults.Model = "turbo"
	}
	if c.Defaults.Beam == 0 {
		c.Defaults.Beam = 5
	}
	if c.Defaults.Language == "" {
		c.Defaults.Language = "en"
	}
}

// ContainerInfo is the slice of container state the manager needs.
type ContainerInfo struct {
	ID      string
	Running bool
	Env     []string
	Ports   nat.PortMap
}

// Engine is the narrow view of the container runtime the manager uses.
// Inspect returns (nil, nil) when no container with that name exists.
type Engine interface {
	Ping(ctx context.Context) error
	Inspect(ctx context.Context, name string) (*ContainerInfo, error)
	Create(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string, grace time.Duration) error
	Remove(ctx context.Context, id string, force bool) error
	Pull(ctx context.Context, image string) error
}

// Manager owns one named backend instance. It is not safe for concurrent
// use by independent pipelines; the orchestrator serializes access.
type Manager struct {
	cfg    Config
	engine Engine
	sleep  func(time.Duration)
}

func NewManager(cfg Config, engine Engine) *Manager {
	cfg.applyDefaults()
	return &Manager{cfg: cfg, engine: engine, sleep: time.Sleep}
}

func (m *Manager) Name() string { return m.cfg.Name }

// IsAvailable reports whether the management interface answers a liveness
// probe.
func (m *Manager) IsAvailable(ctx context.Context) bool {
	if err := m.engine.Ping(ctx); err != nil {
		log.Warnf("backend engine ping failed: %v", err)
		return false
	}
	return true
}

// Status derives the instance state from a fresh inspect.
func (m *Manager) Status(ctx context.Context) Status {
	if !m.IsAvailable(ctx) {
		return StatusError
	}
	info, err := m.engine.Inspect(ctx, m.cfg.Name)
	if err != nil {
		log.Errorf("backend inspect %s: %v", m.cfg.Name, err)
		return StatusError
	}
	if info == nil {
		return StatusNotFound
	}
	if info.Running {
		return StatusRunning
	}
	return StatusStopped
}

// Start starts the instance, creating it with default parameters if it
// does not exist yet.
func (m *Manager) Start(ctx context.Context) Status {
	if !m.IsAvailable(ctx) {
		return StatusError
	}
	info, err := m.engine.Inspect(ctx, m.cfg.Name)
	if err != nil {
		log.Errorf("backend inspect %s: %v", m.cfg.Name, err)
		return StatusError
	}

	if info != nil {
		if info.Running {
			return StatusRunning
		}
		if err := m.engine.Start(ctx, info.ID); err != nil {
			log.Errorf("backend start %s: %v", m.cfg.Name, err)
			return StatusError
		}
		return m.Status(ctx)
	}

	return m.create(ctx, m.cfg.Defaults, nil, true)
}

// Stop stops a running instance with the configured grace period.
func (m *Manager) Stop(ctx context.Context) Status {
	if !m.IsAvailable(ctx) {
		return StatusError
	}
	info, err := m.engine.Inspect(ctx, m.cfg.Name)
	if err != nil {
		log.Errorf("backend inspect %s: %v", m.cfg.Name, err)
		return StatusError
	}
	if info == nil {
		return StatusNotFound
	}
	if info.Running {
		log.Info("stopping backend container " + m.cfg.Name)
		if err := m.engine.Stop(ctx, info.ID, m.cfg.StopGrace); err != nil {
			log.Errorf("backend stop %s: %v", m.cfg.Name, err)
			return StatusError
		}
	}
	return m.Status(ctx)
}

// Remove deletes the instance. NotFound is the success status: the
// instance no longer exists.
func (m *Manager) Remove(ctx context.Context, force bool) Status {
	if !m.IsAvailable(ctx) {
		return StatusError
	}
	info, err := m.engine.Inspect(ctx, m.cfg.Name)
	if err != nil {
		log.Errorf("backend inspect %s: %v", m.cfg.Name, err)
		return StatusError
	}
	if info == nil {
		return StatusNotFound
	}
	log.Info("removing backend container " + m.cfg.Name)
	if err := m.engine.Remove(ctx, info.ID, force); err != nil {
		log.Errorf("backend remove %s: %v", m.cfg.Name, err)
		return StatusError
	}
	return StatusNotFound
}

// Recreate applies new model parameters by destroying and recreating the
// instance. If the running container already has exactly these parameters
// the call is a no-op.
//
// Existing port bindings are captured first and reapplied to the new
// container so the endpoint stays reachable at the same address. A failure
// between teardown and creation is surfaced as Error; there is no
// automatic rollback.
func (m *Manager) Recreate(ctx context.Context, p Params) Status {
	if !m.IsAvailable(ctx) {
		return StatusError
	}

	if m.paramsActive(ctx, p) {
		log.Info(fmt.Sprintf("backend already running model=%s beam=%d lang=%s", p.Model, p.Beam, p.Language))
		return StatusRunning
	}
	log.Info(fmt.Sprintf("recreating backend with model=%s beam=%d lang=%s", p.Model, p.Beam, p.Language))

	info, err := m.engine.Inspect(ctx, m.cfg.Name)
	if err != nil {
		log.Errorf("backend inspect %s: %v", m.cfg.Name, err)
		return StatusError
	}

	var ports nat.PortMap
	if info != nil {
		ports = preservePortBindings(info.Ports)
		if info.Running {
			if err := m.engine.Stop(ctx, info.ID, m.cfg.RecreateGrace); err != nil {
				log.Errorf("backend stop for recreate: %v", err)
				return StatusError
			}
		}
		if err := m.engine.Remove(ctx, info.ID, false); err != nil {
			log.Errorf("backend remove for recreate: %v", err)
			return StatusError
		}
	}

	st := m.create(ctx, p, ports, false)
	if st == StatusRunning || st == StatusStopped {
		m.sleep(m.cfg.SettleDelay)
	}
	return st
}

// EnvParam reads one environment variable from the running instance.
// The second return is false if the instance is not running or the
// variable is absent.
func (m *Manager) EnvParam(ctx context.Context, key string) (string, bool) {
	info, err := m.engine.Inspect(ctx, m.cfg.Name)
	if err != nil || info == nil || !info.Running {
		return "", false
	}
	prefix := key + "="
	for _, kv := range info.Env {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):], true
		}
	}
	return "", false
}

// paramsActive reports whether the running instance already carries
// exactly the requested parameters.
func (m *Manager) paramsActive(ctx context.Context, p Params) bool {
	model, ok := m.EnvParam(ctx, EnvModel)
	if !ok || model != p.Model {
		return false
	}
	beamStr, ok := m.EnvParam(ctx, EnvBeam)
	if !ok {
		return false
	}
	beam, err := strconv.Atoi(beamStr)
	if err != nil || beam != p.Beam {
		return false
	}
	lang, ok := m.EnvParam(ctx, EnvLang)
	return ok && lang == p.Language
}

func (m *Manager) create(ctx context.Context, p Params, ports nat.PortMap, pull bool) Status {
	if pull && m.cfg.AutoPull {
		log.Info("pulling image " + m.cfg.Image)
		if err := m.engine.Pull(ctx, m.cfg.Image); err != nil {
			// The image may already be present locally; creation decides.
			log.Warnf("image pull: %v", err)
		}
	}

	cfg, hostCfg := m.buildCreateConfig(p, ports)
	id, err := m.engine.Create(ctx, cfg, hostCfg, m.cfg.Name)
	if err != nil {
		log.Errorf("backend create %s: %v", m.cfg.Name, err)
		return StatusError
	}
	if err := m.engine.Start(ctx, id); err != nil {
		log.Errorf("backend start %s: %v", m.cfg.Name, err)
		return StatusError
	}
	return m.Status(ctx)
}

func (m *Manager) buildCreateConfig(p Params, ports nat.PortMap) (*container.Config, *container.HostConfig) {
	env := map[string]string{
		"PUID":   "1000",
		"PGID":   "1000",
		"TZ":     "Etc/UTC",
		EnvModel: p.Model,
		EnvBeam:  strconv.Itoa(p.Beam),
		EnvLang:  p.Language,
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	envList := make([]string, 0, len(env))
	for _, k := range keys {
		envList = append(envList, k+"="+env[k])
	}

	if len(ports) == 0 {
		ports = m.defaultPorts()
	}
	exposed := nat.PortSet{}
	for cp := range ports {
		exposed[cp] = struct{}{}
	}

	cfg := &container.Config{
		Image:        m.cfg.Image,
		Env:          envList,
		ExposedPorts: exposed,
	}
	hostCfg := &container.HostConfig{
		PortBindings:  ports,
		Binds:         []string{m.cfg.Volume + ":/config"},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		Resources: container.Resources{
			DeviceRequests: []container.DeviceRequest{{
				Driver:       "nvidia",
				Count:        -1, // all available GPUs
				Capabilities: [][]string{{"gpu"}}},
			},
		},
	}
	return cfg, hostCfg
}

func (m *Manager) defaultPorts() nat.PortMap {
	cp := nat.Port(fmt.Sprintf("%d/tcp", m.cfg.Port))
	return nat.PortMap{cp: []nat.PortBinding{{HostPort: strconv.Itoa(m.cfg.Port)}}}
}

// preservePortBindings reduces an observed port map to the bindings worth
// carrying across a recreation: the first host binding per container
// port. Unbound ports are dropped.
func preservePortBindings(observed nat.PortMap) nat.PortMap {
	if len(observed) == 0 {
		return nil
	}
	out := nat.PortMap{}
	for cp, bindings := range observed {
		if len(bindings) == 0 {
			continue
		}
		out[cp] = []nat.PortBinding{{HostPort: bindings[0].HostPort}}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
