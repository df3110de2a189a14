// Package coordinator glues a capture together: it validates the
// location fix, injects the map placeholder, and hands the frame to
// the upload queue. It also runs the continuous-capture trigger that
// fires captures on a slow or fast cadence.
package coordinator
