package watch

import "testing"

func TestBarrelIDFromMarkerPath(t *testing.T) {
	cases := []struct {
		path   string
		wantID int
		wantOK bool
	}{
		{"/data/barrels/barrel_3/compaction.complete", 3, true},
		{"/data/barrels/barrel_0/compaction.complete", 0, true},
		{"/data/barrels/not-a-barrel/compaction.complete", 0, false},
		{"/data/barrels/barrel_x/compaction.complete", 0, false},
	}
	for _, c := range cases {
		id, ok := barrelIDFromMarkerPath(c.path)
		if ok != c.wantOK || (ok && id != c.wantID) {
			t.Errorf("barrelIDFromMarkerPath(%q) = (%d, %v), want (%d, %v)", c.path, id, ok, c.wantID, c.wantOK)
		}
	}
}

type fakeReopener struct {
	calledWith []int
}

func (f *fakeReopener) ReopenBarrel(id int) error {
	f.calledWith = append(f.calledWith, id)
	return nil
}

func TestNewReturnsWatcherBoundToReopener(t *testing.T) {
	r := &fakeReopener{}
	w, err := New(r)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if w.reopener != Reopener(r) {
		t.Fatal("watcher not bound to the given reopener")
	}
	w.fw.Close()
}
