package accnt

import "testing"

func TestUtaddSystaddFetch(t *testing.T) {
	var a Accnt_t
	a.Utadd(100)
	a.Systadd(50)

	u := a.Fetch()
	if u.Userns != 100 || u.Sysns != 50 {
		t.Fatalf("Fetch: got %+v, want {100 50}", u)
	}
}

func TestAddMergesCounters(t *testing.T) {
	var a, b Accnt_t
	a.Utadd(10)
	a.Systadd(20)
	b.Utadd(1)
	b.Systadd(2)

	a.Add(&b)
	u := a.Fetch()
	if u.Userns != 11 || u.Sysns != 22 {
		t.Fatalf("Add: got %+v, want {11 22}", u)
	}
}

func TestFirstDispatchIsIdempotent(t *testing.T) {
	var a Accnt_t
	if got := a.SinceFirstDispatch(); got != 0 {
		t.Fatalf("SinceFirstDispatch before any dispatch: got %d, want 0", got)
	}

	a.FirstDispatch()
	first := a.SinceFirstDispatch()

	a.FirstDispatch() // second call must not reset the stamp
	second := a.SinceFirstDispatch()

	if first < 0 || second < first {
		t.Fatalf("SinceFirstDispatch should be monotonic after a single stamp: first=%d second=%d", first, second)
	}
}
