// Package preflight provides readiness checks for the filesystem paths
// and backend service that Hillview depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before starting the upload loop, so
//     misconfiguration surfaces immediately rather than as repeated
//     upload failures.
//   - The CLI "hillview preflight" command uses the same checks to
//     display readiness to the operator.
package preflight
