package sandbox

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/containerd/errdefs"
	"pkt.systems/pslog"
)

// DefaultTag is assumed when an image reference carries no tag.
const DefaultTag = "latest"

// ImageRef is a validated pointer to a container image. It cannot exist in
// an invalid state: construction fails unless the control plane knows an
// image whose tag set contains repository:tag and whose content id matches
// the claimed id, if one was given.
type ImageRef struct {
	repository string
	id         string
	tag        string
	name       string
}

// NewImageRef validates repository/id/tag against the control plane and
// returns an immutable reference. A mismatch yields a *ValidationError;
// control plane failures propagate unchanged.
func NewImageRef(ctx context.Context, cp ControlPlane, repository, id, tag string) (*ImageRef, error) {
	repository = strings.TrimSpace(repository)
	if repository == "" {
		return nil, &ValidationError{Tag: tag, ID: id, Reason: "repository is required"}
	}
	if tag == "" {
		tag = DefaultTag
	}
	name := repository + ":" + tag
	log := pslog.Ctx(ctx).With("image", name)

	key := name
	if id != "" {
		key = id
	}
	info, err := cp.InspectImage(ctx, key)
	if err != nil {
		log.Warn("image validate failed", "err", err)
		return nil, err
	}
	if info.ID == "" {
		log.Warn("image validate failed", "reason", "no metadata")
		return nil, &ValidationError{Repository: repository, Tag: tag, ID: id, Reason: "control plane returned no image metadata"}
	}
	if !slices.Contains(info.RepoTags, name) {
		log.Warn("image validate failed", "reason", "name not in tag set", "id", info.ID)
		return nil, &ValidationError{Repository: repository, Tag: tag, ID: id, Reason: "name is not in the image tag set"}
	}
	if id != "" && info.ID != id {
		log.Warn("image validate failed", "reason", "id mismatch", "reported", info.ID)
		return nil, &ValidationError{Repository: repository, Tag: tag, ID: id, Reason: "image name does not match image id"}
	}
	log.Debug("image validate ok", "id", info.ID)
	return &ImageRef{repository: repository, id: id, tag: tag, name: name}, nil
}

// Repository returns the repository name.
func (r *ImageRef) Repository() string { return r.repository }

// ID returns the claimed content id, if any.
func (r *ImageRef) ID() string { return r.id }

// Tag returns the tag.
func (r *ImageRef) Tag() string { return r.tag }

// FullName returns repository:tag.
func (r *ImageRef) FullName() string { return r.name }

// ImageAvailable probes whether a valid reference can be constructed.
// Not-found and validation failures report false. A generic control plane
// failure reports false only when a tag was explicitly given: a tagged
// probe is expected to miss, an untagged lookup failing points at a deeper
// runtime problem and is surfaced instead.
func ImageAvailable(ctx context.Context, cp ControlPlane, repository, id, tag string) (bool, error) {
	_, err := NewImageRef(ctx, cp, repository, id, tag)
	if err == nil {
		return true, nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return false, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	if tag != "" {
		return false, nil
	}
	return false, err
}
