package schema

import "errors"

var (
	// ErrMissingRepository indicates the manifest names no image repository.
	ErrMissingRepository = errors.New("image.repository is required")
	// ErrMissingScript indicates neither script nor script_path was given.
	ErrMissingScript = errors.New("script or script_path is required")
	// ErrScriptConflict indicates both script and script_path were given.
	ErrScriptConflict = errors.New("script and script_path are mutually exclusive")
	// ErrMissingWorkDir indicates the manifest names no work directory.
	ErrMissingWorkDir = errors.New("work_dir is required")
	// ErrMissingResourceDir indicates the manifest names no resource directory.
	ErrMissingResourceDir = errors.New("resource_dir is required")
	// ErrMissingOutputDir indicates the manifest names no output directory.
	ErrMissingOutputDir = errors.New("output_dir is required")
)
