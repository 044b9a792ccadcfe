package scene

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/signalsfoundry/orrery/internal/appearance"
	"github.com/signalsfoundry/orrery/model"
)

type recordingMetrics struct {
	populated bool
	bodies    int
	calls     int
}

func (r *recordingMetrics) SetScene(populated bool, bodies int) {
	r.populated = populated
	r.bodies = bodies
	r.calls++
}

func squareOrbit() []model.Point {
	return []model.Point{
		{X: 100, Y: 0, Z: 0},
		{X: 0, Y: 100, Z: 0},
		{X: -100, Y: 0, Z: 0},
		{X: 0, Y: -100, Z: 0},
	}
}

func testPlanets() []model.PlanetDescriptor {
	return []model.PlanetDescriptor{
		{Name: "Mercury", Radius: 2, Orbit: squareOrbit()},
		{Name: "Earth", Radius: 5, Orbit: squareOrbit()},
		{Name: "Pluto", Radius: 1, Orbit: squareOrbit()},
	}
}

func TestManager_StartsLoading(t *testing.T) {
	rec := &recordingMetrics{}
	m := NewManager(appearance.Defaults(), WithMetricsRecorder(rec))

	if _, ok := m.State().(Loading); !ok {
		t.Fatalf("initial state = %T, want Loading", m.State())
	}
	if rec.calls != 1 || rec.populated {
		t.Fatalf("metrics after construction = %+v", rec)
	}
	if m.Planets() != nil {
		t.Fatalf("Planets() while loading = %v", m.Planets())
	}

	if got := m.Tick(); got != 1 {
		t.Fatalf("Tick() while loading = %d, want 1", got)
	}
	if _, ok := m.State().(Loading); !ok {
		t.Fatalf("ticking should not leave Loading")
	}
}

func TestManager_PopulateTransitionsOnce(t *testing.T) {
	rec := &recordingMetrics{}
	m := NewManager(appearance.Defaults(), WithMetricsRecorder(rec))

	var seen []Populated
	m.OnTransition(func(p Populated) { seen = append(seen, p) })

	if err := m.Populate(testPlanets()); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if err := m.Populate(testPlanets()); !errors.Is(err, ErrAlreadyPopulated) {
		t.Fatalf("second Populate err = %v, want ErrAlreadyPopulated", err)
	}

	st, ok := m.State().(Populated)
	if !ok {
		t.Fatalf("state = %T, want Populated", m.State())
	}
	if len(st.Bodies) != 3 {
		t.Fatalf("bodies = %d, want 3", len(st.Bodies))
	}
	for i, want := range []string{"Mercury", "Earth", "Pluto"} {
		if st.Bodies[i].Name != want {
			t.Fatalf("body %d = %s, want %s", i, st.Bodies[i].Name, want)
		}
	}
	if len(seen) != 1 || len(seen[0].Bodies) != 3 {
		t.Fatalf("transition listener calls = %d", len(seen))
	}
	if !rec.populated || rec.bodies != 3 {
		t.Fatalf("metrics after populate = %+v", rec)
	}
}

func TestManager_SpeedsFromTable(t *testing.T) {
	m := NewManager(appearance.Defaults())
	if err := m.Populate(testPlanets()); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	want := map[string]float64{"Mercury": 0.02, "Earth": 0.01, "Pluto": 0.01}
	for name, speed := range want {
		b, ok := m.Body(name)
		if !ok {
			t.Fatalf("body %s missing", name)
		}
		if b.Speed != speed {
			t.Fatalf("%s speed = %v, want %v", name, b.Speed, speed)
		}
	}

	if _, ok := m.Body("pluto"); !ok {
		t.Fatalf("Body lookup should be case-insensitive")
	}
	if _, ok := m.Body("Vulcan"); ok {
		t.Fatalf("unexpected body Vulcan")
	}
}

func TestManager_TickAdvancesEveryBody(t *testing.T) {
	m := NewManager(appearance.Defaults())
	if err := m.Populate(testPlanets()); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	for i := 0; i < 10; i++ {
		m.Tick()
	}
	if got := m.TickCount(); got != 10 {
		t.Fatalf("TickCount() = %d, want 10", got)
	}

	earth, _ := m.Body("Earth")
	if math.Abs(earth.Angle-0.1) > 1e-12 {
		t.Fatalf("Earth angle = %v, want 0.1", earth.Angle)
	}
	mercury, _ := m.Body("Mercury")
	if math.Abs(mercury.Angle-0.2) > 1e-12 {
		t.Fatalf("Mercury angle = %v, want 0.2", mercury.Angle)
	}
	if math.Abs(earth.Spin-mercury.Spin) > 1e-15 {
		t.Fatalf("spin differs between bodies: %v vs %v", earth.Spin, mercury.Spin)
	}

	snap := m.Snapshot()
	if snap.Tick != 10 || snap.Sun.Position != (model.Point{}) {
		t.Fatalf("unexpected snapshot header: tick=%d sun=%+v", snap.Tick, snap.Sun.Position)
	}
}

func TestManager_EmptyPopulate(t *testing.T) {
	rec := &recordingMetrics{}
	m := NewManager(appearance.Defaults(), WithMetricsRecorder(rec))
	if err := m.Populate(nil); err != nil {
		t.Fatalf("Populate(nil): %v", err)
	}
	st, ok := m.State().(Populated)
	if !ok || len(st.Bodies) != 0 {
		t.Fatalf("state = %#v, want empty Populated", m.State())
	}
	m.Tick()
	if !rec.populated || rec.bodies != 0 {
		t.Fatalf("metrics = %+v", rec)
	}
}

func TestManager_ConcurrentReaders(t *testing.T) {
	m := NewManager(appearance.Defaults())
	if err := m.Populate(testPlanets()); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = BuildFrame(m)
					_, _ = m.Body("Earth")
				}
			}
		}()
	}
	for i := 0; i < 500; i++ {
		m.Tick()
	}
	close(stop)
	wg.Wait()

	if got := m.TickCount(); got != 500 {
		t.Fatalf("TickCount() = %d, want 500", got)
	}
}
