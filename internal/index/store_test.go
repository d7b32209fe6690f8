package index

import (
	"errors"
	"testing"
	"time"

	"lexcheck/internal/cache"
	"lexcheck/internal/model"
)

func TestStore_GetOrBuildCachesLiveIndex(t *testing.T) {
	store := NewStore(nil, time.Hour)
	segments := sampleActSegments()
	fp := Fingerprint(segments)

	loads := 0
	load := func() ([]model.Segment, error) {
		loads++
		return segments, nil
	}

	ix1, err := store.GetOrBuild("act-1", fp, load)
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	ix2, err := store.GetOrBuild("act-1", fp, load)
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	if loads != 1 {
		t.Errorf("loader called %d times, want 1", loads)
	}
	if ix1 != ix2 {
		t.Error("second GetOrBuild should return the live index")
	}
}

func TestStore_InvalidateForcesRebuild(t *testing.T) {
	store := NewStore(cache.NewMemoryCache(time.Hour, time.Hour), time.Hour)
	segments := sampleActSegments()
	fp := Fingerprint(segments)

	loads := 0
	load := func() ([]model.Segment, error) {
		loads++
		return segments, nil
	}

	if _, err := store.GetOrBuild("act-1", fp, load); err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	store.Invalidate("act-1", fp)
	if _, err := store.GetOrBuild("act-1", fp, load); err != nil {
		t.Fatalf("GetOrBuild after invalidate: %v", err)
	}
	if loads != 2 {
		t.Errorf("loader called %d times after invalidate, want 2", loads)
	}
}

func TestStore_DiskCacheSurvivesLiveEviction(t *testing.T) {
	c := cache.NewMemoryCache(time.Hour, time.Hour)
	segments := sampleActSegments()
	fp := Fingerprint(segments)

	first := NewStore(c, time.Hour)
	if _, err := first.GetOrBuild("act-1", fp, func() ([]model.Segment, error) { return segments, nil }); err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}

	// A fresh store (new process) must satisfy the same fingerprint
	// from the shared cache without re-loading segments.
	second := NewStore(c, time.Hour)
	ix, err := second.GetOrBuild("act-1", fp, func() ([]model.Segment, error) {
		return nil, errors.New("loader must not run")
	})
	if err != nil {
		t.Fatalf("GetOrBuild from cache: %v", err)
	}
	if ix.Fingerprint != fp {
		t.Errorf("cached index fingerprint = %s, want %s", ix.Fingerprint, fp)
	}
	if len(ix.Lookup("5")) == 0 {
		t.Error("cached index lost its boundaries")
	}
}

func TestStore_LoaderErrorPropagates(t *testing.T) {
	store := NewStore(nil, time.Hour)
	wantErr := errors.New("segments unavailable")
	_, err := store.GetOrBuild("act-1", "fp", func() ([]model.Segment, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
}
