package backend

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
)

func newTestManager(engine *FakeEngine) *Manager {
	m := NewManager(Config{AutoPull: true}, engine)
	m.sleep = func(time.Duration) {}
	return m
}

func envFor(model string, beam int, lang string) []string {
	return []string{
		"PUID=1000", "PGID=1000", "TZ=Etc/UTC",
		EnvModel + "=" + model,
		EnvBeam + "=" + strconv.Itoa(beam),
		EnvLang + "=" + lang,
	}
}

func TestStatusErrorWhenEngineUnreachable(t *testing.T) {
	engine := &FakeEngine{PingErr: errors.New("daemon down")}
	engine.SetContainer(true, nil, nil)
	m := newTestManager(engine)

	if st := m.Status(context.Background()); st != StatusError {
		t.Errorf("Status = %q, want %q", st, StatusError)
	}
}

func TestStatusValues(t *testing.T) {
	engine := &FakeEngine{}
	m := newTestManager(engine)
	ctx := context.Background()

	if st := m.Status(ctx); st != StatusNotFound {
		t.Errorf("no container: Status = %q", st)
	}
	engine.SetContainer(false, nil, nil)
	if st := m.Status(ctx); st != StatusStopped {
		t.Errorf("stopped container: Status = %q", st)
	}
	engine.SetContainer(true, nil, nil)
	if st := m.Status(ctx); st != StatusRunning {
		t.Errorf("running container: Status = %q", st)
	}
}

func TestStartCreatesMissingContainer(t *testing.T) {
	engine := &FakeEngine{}
	m := newTestManager(engine)

	if st := m.Start(context.Background()); st != StatusRunning {
		t.Fatalf("Start = %q, want running", st)
	}
	if !slices.Contains(engine.Calls, "pull") {
		t.Error("expected image pull on first create")
	}
	if !slices.Contains(engine.LastCfg.Env, EnvModel+"=turbo") {
		t.Errorf("default model missing from env: %v", engine.LastCfg.Env)
	}
	if engine.LastHost.RestartPolicy.Name != "unless-stopped" {
		t.Errorf("restart policy = %q", engine.LastHost.RestartPolicy.Name)
	}
	dr := engine.LastHost.Resources.DeviceRequests
	if len(dr) != 1 || dr[0].Count != -1 || dr[0].Driver != "nvidia" {
		t.Errorf("device requests = %+v", dr)
	}
	bindings := engine.LastHost.PortBindings[nat.Port("10300/tcp")]
	if len(bindings) != 1 || bindings[0].HostPort != "10300" {
		t.Errorf("port bindings = %+v", engine.LastHost.PortBindings)
	}
	if len(engine.LastHost.Binds) != 1 || engine.LastHost.Binds[0] != "whisper-models:/config" {
		t.Errorf("binds = %v", engine.LastHost.Binds)
	}
}

func TestStartExistingStoppedContainer(t *testing.T) {
	engine := &FakeEngine{}
	engine.SetContainer(false, nil, nil)
	m := newTestManager(engine)

	if st := m.Start(context.Background()); st != StatusRunning {
		t.Errorf("Start = %q", st)
	}
	if slices.Contains(engine.Calls, "create") {
		t.Error("existing container must not be recreated by Start")
	}
}

func TestStartAlreadyRunningIsNoop(t *testing.T) {
	engine := &FakeEngine{}
	engine.SetContainer(true, nil, nil)
	m := newTestManager(engine)

	if st := m.Start(context.Background()); st != StatusRunning {
		t.Errorf("Start = %q", st)
	}
	if slices.Contains(engine.Calls, "start") {
		t.Error("running container should not be started again")
	}
}

func TestStopAndRemove(t *testing.T) {
	engine := &FakeEngine{}
	m := newTestManager(engine)
	ctx := context.Background()

	if st := m.Stop(ctx); st != StatusNotFound {
		t.Errorf("Stop without container = %q", st)
	}
	engine.SetContainer(true, nil, nil)
	if st := m.Stop(ctx); st != StatusStopped {
		t.Errorf("Stop = %q", st)
	}
	if st := m.Remove(ctx, false); st != StatusNotFound {
		t.Errorf("Remove = %q, want not_found on success", st)
	}
	if st := m.Status(ctx); st != StatusNotFound {
		t.Errorf("Status after remove = %q", st)
	}
}

func TestRecreateIdempotentWhenParamsActive(t *testing.T) {
	engine := &FakeEngine{}
	engine.SetContainer(true, envFor("turbo", 5, "en"), nil)
	m := newTestManager(engine)

	p := Params{Model: "turbo", Beam: 5, Language: "en"}
	if st := m.Recreate(context.Background(), p); st != StatusRunning {
		t.Fatalf("Recreate = %q", st)
	}
	if n := engine.DestructiveOps(); n != 0 {
		t.Errorf("destructive ops = %d, want 0", n)
	}
}

func TestRecreateTwiceDestroysAtMostOnce(t *testing.T) {
	engine := &FakeEngine{}
	engine.SetContainer(true, envFor("base", 1, "en"), nil)
	m := newTestManager(engine)
	ctx := context.Background()

	p := Params{Model: "turbo", Beam: 5, Language: "en"}
	if st := m.Recreate(ctx, p); st != StatusRunning {
		t.Fatalf("first Recreate = %q", st)
	}
	destructive := engine.DestructiveOps()
	if destructive == 0 {
		t.Fatal("first Recreate should tear down the old container")
	}

	if st := m.Recreate(ctx, p); st != StatusRunning {
		t.Fatalf("second Recreate = %q", st)
	}
	if n := engine.DestructiveOps(); n != destructive {
		t.Errorf("second identical Recreate performed %d extra destructive ops", n-destructive)
	}
}

func TestRecreatePreservesPortBindings(t *testing.T) {
	observed := nat.PortMap{
		nat.Port("10300/tcp"): []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: "9999"}},
	}
	engine := &FakeEngine{}
	engine.SetContainer(true, envFor("base", 1, "en"), observed)
	m := newTestManager(engine)

	p := Params{Model: "turbo", Beam: 5, Language: "en"}
	if st := m.Recreate(context.Background(), p); st != StatusRunning {
		t.Fatalf("Recreate = %q", st)
	}
	bindings := engine.LastHost.PortBindings[nat.Port("10300/tcp")]
	if len(bindings) != 1 || bindings[0].HostPort != "9999" {
		t.Errorf("port bindings not preserved: %+v", engine.LastHost.PortBindings)
	}
}

func TestRecreateInjectsParams(t *testing.T) {
	engine := &FakeEngine{}
	m := newTestManager(engine)

	p := Params{Model: "turbo", Beam: 7, Language: "de"}
	if st := m.Recreate(context.Background(), p); st != StatusRunning {
		t.Fatalf("Recreate = %q", st)
	}
	for _, want := range []string{EnvModel + "=turbo", EnvBeam + "=7", EnvLang + "=de"} {
		if !slices.Contains(engine.LastCfg.Env, want) {
			t.Errorf("env missing %q: %v", want, engine.LastCfg.Env)
		}
	}
}

func TestRecreateAbortsOnTeardownFailure(t *testing.T) {
	engine := &FakeEngine{StopErr: errors.New("stop failed")}
	engine.SetContainer(true, envFor("base", 1, "en"), nil)
	m := newTestManager(engine)

	p := Params{Model: "turbo", Beam: 5, Language: "en"}
	if st := m.Recreate(context.Background(), p); st != StatusError {
		t.Fatalf("Recreate = %q, want error", st)
	}
	if slices.Contains(engine.Calls, "create") {
		t.Error("must not create after failed teardown")
	}
}

func TestEnvParam(t *testing.T) {
	engine := &FakeEngine{}
	m := newTestManager(engine)
	ctx := context.Background()

	if _, ok := m.EnvParam(ctx, EnvModel); ok {
		t.Error("EnvParam without container should report absent")
	}
	engine.SetContainer(false, envFor("turbo", 5, "en"), nil)
	if _, ok := m.EnvParam(ctx, EnvModel); ok {
		t.Error("EnvParam on stopped container should report absent")
	}
	engine.SetContainer(true, envFor("turbo", 5, "en"), nil)
	if v, ok := m.EnvParam(ctx, EnvModel); !ok || v != "turbo" {
		t.Errorf("EnvParam = %q, %v", v, ok)
	}
	if _, ok := m.EnvParam(ctx, "NOPE"); ok {
		t.Error("absent variable should report absent")
	}
}

func TestPreservePortBindings(t *testing.T) {
	in := nat.PortMap{
		nat.Port("10300/tcp"): []nat.PortBinding{
			{HostIP: "0.0.0.0", HostPort: "9999"},
			{HostIP: "::", HostPort: "9999"},
		},
		nat.Port("8080/tcp"): nil, // unbound, dropped
	}
	out := preservePortBindings(in)
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	b := out[nat.Port("10300/tcp")]
	if len(b) != 1 || b[0].HostPort != "9999" || b[0].HostIP != "" {
		t.Errorf("bindings = %+v", b)
	}

	if got := preservePortBindings(nil); got != nil {
		t.Errorf("nil input should map to nil, got %v", got)
	}
}
