package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/containerd/errdefs"
)

func fakeWithImage(name, id string, tags ...string) *fakeControlPlane {
	info := ImageInfo{ID: id, RepoTags: tags}
	images := map[string]ImageInfo{name: info}
	if id != "" {
		images[id] = info
	}
	return &fakeControlPlane{images: images}
}

func TestNewImageRef(t *testing.T) {
	cp := fakeWithImage("busybox:1.36", "sha256:abc", "busybox:1.36", "busybox:latest")
	ref, err := NewImageRef(context.Background(), cp, "busybox", "", "1.36")
	if err != nil {
		t.Fatalf("NewImageRef: %v", err)
	}
	if ref.Repository() != "busybox" || ref.Tag() != "1.36" {
		t.Fatalf("got %s:%s", ref.Repository(), ref.Tag())
	}
	if ref.FullName() != "busybox:1.36" {
		t.Fatalf("full name %q", ref.FullName())
	}
	if ref.ID() != "" {
		t.Fatalf("id %q, expected none claimed", ref.ID())
	}
}

func TestNewImageRefDefaultsTag(t *testing.T) {
	cp := fakeWithImage("busybox:latest", "sha256:abc", "busybox:latest")
	ref, err := NewImageRef(context.Background(), cp, "busybox", "", "")
	if err != nil {
		t.Fatalf("NewImageRef: %v", err)
	}
	if ref.Tag() != DefaultTag {
		t.Fatalf("tag %q, want %q", ref.Tag(), DefaultTag)
	}
	if ref.FullName() != "busybox:latest" {
		t.Fatalf("full name %q", ref.FullName())
	}
}

func TestNewImageRefByID(t *testing.T) {
	cp := fakeWithImage("busybox:latest", "sha256:abc", "busybox:latest")
	ref, err := NewImageRef(context.Background(), cp, "busybox", "sha256:abc", "latest")
	if err != nil {
		t.Fatalf("NewImageRef: %v", err)
	}
	if ref.ID() != "sha256:abc" {
		t.Fatalf("id %q", ref.ID())
	}
}

func TestNewImageRefEmptyRepository(t *testing.T) {
	_, err := NewImageRef(context.Background(), &fakeControlPlane{}, "  ", "", "")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error %v, want *ValidationError", err)
	}
}

func TestNewImageRefIDMismatch(t *testing.T) {
	// The claimed id resolves (a short id, say), but the control plane
	// reports a different canonical identifier for it.
	cp := fakeWithImage("busybox:latest", "sha256:abc", "busybox:latest")
	cp.images["sha256:wrong"] = ImageInfo{ID: "sha256:abc", RepoTags: []string{"busybox:latest"}}
	_, err := NewImageRef(context.Background(), cp, "busybox", "sha256:wrong", "latest")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error %v, want *ValidationError", err)
	}
}

func TestNewImageRefUnknownIDPropagatesNotFound(t *testing.T) {
	cp := fakeWithImage("busybox:latest", "sha256:abc", "busybox:latest")
	_, err := NewImageRef(context.Background(), cp, "busybox", "sha256:unknown", "latest")
	if !errdefs.IsNotFound(err) {
		t.Fatalf("error %v, want not-found classification", err)
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		t.Fatalf("unknown id must not be reported as validation failure")
	}
}

func TestNewImageRefNameNotInTagSet(t *testing.T) {
	// The id resolves, but the image is tagged under a different name.
	cp := &fakeControlPlane{images: map[string]ImageInfo{
		"sha256:abc": {ID: "sha256:abc", RepoTags: []string{"alpine:latest"}},
	}}
	_, err := NewImageRef(context.Background(), cp, "busybox", "sha256:abc", "latest")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error %v, want *ValidationError", err)
	}
}

func TestNewImageRefPropagatesRuntimeError(t *testing.T) {
	boom := errors.New("socket gone")
	cp := &fakeControlPlane{inspectImageErr: boom}
	_, err := NewImageRef(context.Background(), cp, "busybox", "", "latest")
	if !errors.Is(err, boom) {
		t.Fatalf("error %v, want the runtime error unchanged", err)
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		t.Fatalf("runtime error must not be reported as validation failure")
	}
}

func TestImageAvailable(t *testing.T) {
	cp := fakeWithImage("busybox:latest", "sha256:abc", "busybox:latest")
	ok, err := ImageAvailable(context.Background(), cp, "busybox", "", "latest")
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v", ok, err)
	}
}

func TestImageAvailableMissing(t *testing.T) {
	cp := &fakeControlPlane{images: map[string]ImageInfo{}}
	ok, err := ImageAvailable(context.Background(), cp, "busybox", "", "latest")
	if err != nil {
		t.Fatalf("missing image must not be an error: %v", err)
	}
	if ok {
		t.Fatalf("missing image reported available")
	}
}

func TestImageAvailableValidationFailure(t *testing.T) {
	cp := fakeWithImage("busybox:latest", "sha256:abc", "busybox:latest")
	ok, err := ImageAvailable(context.Background(), cp, "busybox", "sha256:wrong", "latest")
	if err != nil {
		t.Fatalf("id mismatch must not be an error: %v", err)
	}
	if ok {
		t.Fatalf("mismatched reference reported available")
	}
}

func TestImageAvailableErrorAsymmetry(t *testing.T) {
	boom := errors.New("socket gone")
	cp := &fakeControlPlane{inspectImageErr: boom}

	// With an explicit tag a failed probe is just "not available".
	ok, err := ImageAvailable(context.Background(), cp, "busybox", "", "1.36")
	if ok || err != nil {
		t.Fatalf("tagged probe: got ok=%v err=%v, want false, nil", ok, err)
	}

	// Without one the runtime failure surfaces.
	ok, err = ImageAvailable(context.Background(), cp, "busybox", "", "")
	if ok {
		t.Fatalf("untagged probe reported available")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("untagged probe error %v, want the runtime error", err)
	}
}
