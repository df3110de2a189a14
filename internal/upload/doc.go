// Package upload sends captured photos to the Hillview backend. The
// client performs exactly one attempt per call; retry scheduling is the
// workflow manager's concern.
package upload
